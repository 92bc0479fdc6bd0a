package gesture

import (
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
)

// Dismissable is the part of the view the router drives.
type Dismissable interface {
	State() view.State
	Dismiss()
}

// Router forwards touch events to the detector while the photo is shown.
type Router struct {
	view     Dismissable
	detector *Detector
}

// NewRouter creates a router over v.
func NewRouter(v Dismissable, d *Detector) *Router {
	return &Router{view: v, detector: d}
}

// OnTouch reports whether the event was consumed. Only a fling emits a
// dismiss, exactly once per gesture.
func (r *Router) OnTouch(ev Event) bool {
	if r.view.State() != view.PhotoShown {
		r.detector.Reset()
		return false
	}
	g := r.detector.Feed(ev)
	if g.Kind != None {
		debug.Trace("Gesture %s at (%.0f,%.0f)", g.Kind, ev.X, ev.Y)
	}
	if g.Kind == Flung {
		debug.Live("Fling (%.0f, %.0f px/s), dismissing photo", g.VX, g.VY)
		r.view.Dismiss()
	}
	return true
}
