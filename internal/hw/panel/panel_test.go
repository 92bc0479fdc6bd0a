package panel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestButton_FallingEdgeTriggersOnce(t *testing.T) {
	d := gpio.NewMockDriver()
	var presses atomic.Int32
	b := NewButton(d, 17, time.Millisecond, time.Hour, func() { presses.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, func() bool { return d.Output(17) == gpio.High }) // pull-up applied
	d.SetInput(17, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 1 })

	// Held down: no repeat. Released and pressed again inside the
	// debounce window: ignored.
	time.Sleep(10 * time.Millisecond)
	d.SetInput(17, gpio.High)
	time.Sleep(10 * time.Millisecond)
	d.SetInput(17, gpio.Low)
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := presses.Load(); got != 1 {
		t.Errorf("presses = %d, want 1", got)
	}
}

func TestButton_PressesAfterDebounce(t *testing.T) {
	d := gpio.NewMockDriver()
	var presses atomic.Int32
	b := NewButton(d, 5, time.Millisecond, 5*time.Millisecond, func() { presses.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	waitFor(t, func() bool { return d.Output(5) == gpio.High })
	for i := 0; i < 2; i++ {
		d.SetInput(5, gpio.Low)
		waitFor(t, func() bool { return presses.Load() == int32(i+1) })
		d.SetInput(5, gpio.High)
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLEDs_MirrorRegions(t *testing.T) {
	d := gpio.NewMockDriver()
	l, err := NewLEDs(d, 22, 23, 0)
	if err != nil {
		t.Fatalf("NewLEDs: %v", err)
	}

	tests := []struct {
		state   view.State
		preview gpio.Level
		button  gpio.Level
	}{
		{view.Preview, gpio.High, gpio.High},
		{view.PhotoShown, gpio.Low, gpio.Low},
	}
	for _, tt := range tests {
		l.Present(tt.state, view.RegionsFor(tt.state), nil)
		if got := d.Output(22); got != tt.preview {
			t.Errorf("%s: preview LED = %s, want %s", tt.state, got, tt.preview)
		}
		if got := d.Output(23); got != tt.button {
			t.Errorf("%s: button LED = %s, want %s", tt.state, got, tt.button)
		}
	}
	if d.Writes() != 4 {
		t.Errorf("writes = %d, want 4 (photo LED not fitted)", d.Writes())
	}

	l.Off()
	if d.Output(22) != gpio.Low || d.Output(23) != gpio.Low {
		t.Error("LEDs still on after Off")
	}
}
