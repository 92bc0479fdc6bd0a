package surface

import (
	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Binder is the consumer of surface events, normally the camera session
// (through the application controller).
type Binder interface {
	Open(s *Surface)
	Release()
}

// Lifecycle tracks the single current surface. Call it from the event
// loop only.
type Lifecycle struct {
	binder  Binder
	current *Surface
}

// NewLifecycle creates a lifecycle in the Invalid state.
func NewLifecycle(b Binder) *Lifecycle {
	return &Lifecycle{binder: b}
}

// Current returns the surface of the current Valid period, or nil.
func (l *Lifecycle) Current() *Surface { return l.current }

// Valid reports whether a surface is currently valid.
func (l *Lifecycle) Valid() bool { return l.current.Valid() }

// OnCreated starts a Valid period and asks the binder to open exactly
// once. A create while still valid destroys the previous surface first.
func (l *Lifecycle) OnCreated(s *Surface) {
	if l.current != nil {
		debug.Surface("implicit-destroy", l.current.ID)
		l.OnDestroyed()
	}
	l.current = s
	debug.Surface("created", s.ID)
	l.binder.Open(s)
}

// OnChanged records a new format. Ignored while invalid.
func (l *Lifecycle) OnChanged(format PixelFormat, width, height int) {
	if !l.Valid() {
		debug.Verbose("Surface changed while invalid, ignored (%s %dx%d)", format, width, height)
		return
	}
	l.current.Resize(format, width, height)
	debug.Live("Surface %s changed: %s %dx%d", l.current.ID, format, width, height)
}

// OnDestroyed ends the Valid period and always releases the binder, also
// when already invalid or when the open never completed.
func (l *Lifecycle) OnDestroyed() {
	if l.current != nil {
		l.current.Invalidate()
		debug.Surface("destroyed", l.current.ID)
		l.current = nil
	} else {
		debug.Surface("destroyed", "-")
	}
	l.binder.Release()
}
