package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
)

func swipe(dx float64, durationMs int64, steps int) []Event {
	evs := []Event{{Action: Down, X: 100, Y: 100, T: 0}}
	for i := 1; i <= steps; i++ {
		evs = append(evs, Event{
			Action: Move,
			X:      100 + dx*float64(i)/float64(steps),
			Y:      100,
			T:      durationMs * int64(i) / int64(steps),
		})
	}
	last := evs[len(evs)-1]
	return append(evs, Event{Action: Up, X: last.X, Y: last.Y, T: last.T})
}

func TestDetector_Gestures(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   []Kind
	}{
		{"tap", []Event{{Down, 10, 10, 0}, {Up, 11, 10, 80}}, []Kind{Pressed, None}},
		{"slow drag is a scroll", swipe(200, 10000, 4), []Kind{Pressed, Scrolled, Scrolled, Scrolled, Scrolled, None}},
		{"quick swipe is a fling", swipe(300, 80, 4), []Kind{Pressed, Scrolled, Scrolled, Scrolled, Scrolled, Flung}},
		{"jitter inside slop", []Event{{Down, 10, 10, 0}, {Move, 14, 13, 5}, {Up, 14, 13, 6}}, []Kind{Pressed, None, None}},
		{"move without down", []Event{{Move, 50, 50, 0}, {Up, 200, 50, 10}}, []Kind{None, None}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(8, 50)
			var got []Kind
			for _, ev := range tt.events {
				got = append(got, d.Feed(ev).Kind)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetector_FlingVelocity(t *testing.T) {
	d := NewDetector(8, 50)
	var g Gesture
	for _, ev := range swipe(-400, 100, 4) {
		g = d.Feed(ev)
	}
	assert.Equal(t, Flung, g.Kind)
	assert.InDelta(t, -4000, g.VX, 1)
	assert.InDelta(t, 0, g.VY, 0.01)
}

func newShownView() *view.Controller {
	v := view.NewController()
	v.CaptureCompleted(&capture.Image{})
	return v
}

func TestRouter_FlingDismissesOnce(t *testing.T) {
	v := newShownView()
	resumed := 0
	v.OnResume = func() { resumed++ }
	r := NewRouter(v, NewDetector(8, 50))

	for _, ev := range swipe(300, 80, 4) {
		r.OnTouch(ev)
	}
	assert.Equal(t, view.Preview, v.State())
	assert.Equal(t, 1, resumed)
}

func TestRouter_ScrollDoesNotDismiss(t *testing.T) {
	v := newShownView()
	r := NewRouter(v, NewDetector(8, 50))

	for _, ev := range swipe(200, 10000, 4) {
		assert.True(t, r.OnTouch(ev))
	}
	assert.Equal(t, view.PhotoShown, v.State())
}

func TestRouter_IgnoresTouchInPreview(t *testing.T) {
	v := view.NewController()
	r := NewRouter(v, NewDetector(8, 50))

	for _, ev := range swipe(300, 80, 4) {
		assert.False(t, r.OnTouch(ev))
	}
	assert.Equal(t, view.Preview, v.State())
}
