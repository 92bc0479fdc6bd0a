// Package view holds the Preview/PhotoShown state of the screen and the
// visibility of its regions.
package view

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

// State is the view state.
type State string

const (
	Preview    State = "preview"
	PhotoShown State = "photo_shown"
)

const (
	evCaptureCompleted = "capture_completed"
	evDismiss          = "dismiss"
)

// Regions is the visibility of the three screen regions.
type Regions struct {
	Preview bool `json:"preview"`
	Button  bool `json:"button"`
	Photo   bool `json:"photo"`
}

// RegionsFor returns the visible regions of a state.
func RegionsFor(s State) Regions {
	if s == PhotoShown {
		return Regions{Photo: true}
	}
	return Regions{Preview: true, Button: true}
}

// Presenter renders region visibility (viewer page, panel LEDs).
type Presenter interface {
	Present(state State, regions Regions, photo *capture.Image)
}

// Controller is the view state machine. Call it from the event loop only.
type Controller struct {
	machine    *fsm.FSM
	photo      *capture.Image
	presenters []Presenter

	// OnResume runs when the view goes back to Preview.
	OnResume func()
}

// NewController creates a controller in Preview.
func NewController() *Controller {
	c := &Controller{}
	c.machine = fsm.NewFSM(
		string(Preview),
		fsm.Events{
			{Name: evCaptureCompleted, Src: []string{string(Preview)}, Dst: string(PhotoShown)},
			{Name: evDismiss, Src: []string{string(PhotoShown)}, Dst: string(Preview)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				debug.Transition("view", e.Src, e.Dst)
			},
		},
	)
	return c
}

// AddPresenter registers p and pushes the current regions to it.
func (c *Controller) AddPresenter(p Presenter) {
	c.presenters = append(c.presenters, p)
	p.Present(c.State(), RegionsFor(c.State()), c.photo)
}

// State returns the current state.
func (c *Controller) State() State { return State(c.machine.Current()) }

// Photo returns the photo on screen, nil in Preview or for the placeholder.
func (c *Controller) Photo() *capture.Image { return c.photo }

// CaptureCompleted shows img. A nil img shows the placeholder. Ignored
// outside Preview.
func (c *Controller) CaptureCompleted(img *capture.Image) {
	if !c.fire(evCaptureCompleted) {
		return
	}
	c.photo = img
	c.publish()
}

// Dismiss returns to Preview and resumes the live feed. Ignored outside
// PhotoShown.
func (c *Controller) Dismiss() {
	if !c.fire(evDismiss) {
		return
	}
	c.photo = nil
	c.publish()
	if c.OnResume != nil {
		c.OnResume()
	}
}

func (c *Controller) fire(event string) bool {
	if err := c.machine.Event(context.Background(), event); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			debug.Verbose("View event %s ignored in %s", event, c.State())
		} else {
			debug.Error("view."+event, err)
		}
		return false
	}
	return true
}

func (c *Controller) publish() {
	st := c.State()
	regions := RegionsFor(st)
	for _, p := range c.presenters {
		p.Present(st, regions, c.photo)
	}
}
