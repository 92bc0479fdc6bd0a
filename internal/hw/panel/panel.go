// Package panel drives the physical front panel: a capture push button
// and indicator LEDs that mirror the visible screen regions.
package panel

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
)

// Button polls an active-low push button wired to ground with the
// internal pull-up enabled.
type Button struct {
	driver   gpio.Driver
	pin      int
	interval time.Duration
	limiter  *rate.Limiter
	onPress  func()
}

// NewButton creates a button on pin. Presses closer than debounce to the
// previous accepted press are ignored.
func NewButton(d gpio.Driver, pin int, interval, debounce time.Duration, onPress func()) *Button {
	return &Button{
		driver:   d,
		pin:      pin,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(debounce), 1),
		onPress:  onPress,
	}
}

// Run samples the pin until ctx is cancelled. A falling edge is a press.
func (b *Button) Run(ctx context.Context) error {
	if err := b.driver.SetupPin(b.pin, gpio.InputPullUp); err != nil {
		return fmt.Errorf("setup capture button pin %d: %w", b.pin, err)
	}
	debug.Verbose("Capture button on GPIO%d, polling every %v", b.pin, b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	prev := gpio.High
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			level, err := b.driver.ReadPin(b.pin)
			if err != nil {
				debug.Error("panel.Button", err)
				continue
			}
			if prev == gpio.High && level == gpio.Low {
				if b.limiter.Allow() {
					debug.Live("Capture button pressed")
					b.onPress()
				} else {
					debug.Trace("Capture button bounce ignored")
				}
			}
			prev = level
		}
	}
}

// LEDs mirrors region visibility on indicator LEDs. Pin 0 = not fitted.
type LEDs struct {
	driver  gpio.Driver
	preview int
	button  int
	photo   int
}

// NewLEDs configures the fitted LED pins as outputs.
func NewLEDs(d gpio.Driver, previewPin, buttonPin, photoPin int) (*LEDs, error) {
	l := &LEDs{driver: d, preview: previewPin, button: buttonPin, photo: photoPin}
	for _, pin := range []int{previewPin, buttonPin, photoPin} {
		if pin == 0 {
			continue
		}
		if err := d.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup LED pin %d: %w", pin, err)
		}
	}
	return l, nil
}

// Present implements view.Presenter.
func (l *LEDs) Present(_ view.State, r view.Regions, _ *capture.Image) {
	l.set(l.preview, r.Preview)
	l.set(l.button, r.Button)
	l.set(l.photo, r.Photo)
}

// Off switches every LED off.
func (l *LEDs) Off() {
	l.Present(view.Preview, view.Regions{}, nil)
}

func (l *LEDs) set(pin int, on bool) {
	if pin == 0 {
		return
	}
	if err := l.driver.WritePin(pin, gpio.Level(on)); err != nil {
		debug.Error("panel.LEDs", err)
	}
}
