package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, cancel := startLoop(t)
	defer cancel()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Call: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want 0..4", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d handlers, want 5", len(got))
	}
}

func TestCallReturnsError(t *testing.T) {
	l, cancel := startLoop(t)
	defer cancel()

	want := errors.New("boom")
	if err := l.Call(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Call = %v, want %v", err, want)
	}
}

func TestPanicDoesNotStopLoop(t *testing.T) {
	l, cancel := startLoop(t)
	defer cancel()

	l.Post(func() { panic("handler bug") })
	if err := l.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("loop stopped after panic: %v", err)
	}
}

func TestCallAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := l.Call(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Call after stop = %v, want ErrStopped", err)
	}

	done := make(chan struct{})
	go func() {
		l.Post(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked after stop")
	}
}

func TestInlineRunsImmediately(t *testing.T) {
	ran := false
	Inline{}.Post(func() { ran = true })
	if !ran {
		t.Error("Inline.Post did not run fn")
	}
}

func TestCallPanicReturnsError(t *testing.T) {
	l, cancel := startLoop(t)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	err := l.Call(ctx, func() error { panic("boom") })
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("Call with panicking fn = %v, want ErrPanicked", err)
	}
	if err := l.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("loop not usable after panic: %v", err)
	}
}
