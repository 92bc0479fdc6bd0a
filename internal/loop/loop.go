// Package loop provides the single event-dispatch goroutine on which every
// lifecycle, permission, touch and hardware callback runs. Handlers never
// run in parallel with each other; each completes before the next starts.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrStopped is returned by Call when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Dispatcher hands work to the event loop. Components that receive
// callbacks from other goroutines depend on this, not on *Loop.
type Dispatcher interface {
	Post(fn func())
}

// Loop is a FIFO of functions executed on one goroutine.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// New creates a loop with the given queue capacity.
func New(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 64
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full and drops fn once
// the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		debug.Trace("loop: dropping work posted after stop")
	case l.queue <- fn:
	}
}

// ErrPanicked wraps the value of a handler panic recovered by Call.
var ErrPanicked = errors.New("handler panicked")

// Call runs fn on the loop and waits for its result. A panic in fn is
// recovered and returned as an error wrapping ErrPanicked.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: %v", ErrPanicked, r)
				debug.Error("loop.Call", err)
				result <- err
			}
		}()
		result <- fn()
	}
	select {
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.queue <- run:
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.dispatch(fn)
		}
	}
}

func (l *Loop) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			debug.Error("loop.dispatch", fmt.Errorf("handler panicked: %v", r))
		}
	}()
	fn()
}

// Inline runs posted work immediately on the caller's goroutine.
// Used by tests and by callers already on the loop.
type Inline struct{}

// Post runs fn synchronously.
func (Inline) Post(fn func()) { fn() }
