// Package gesture recognizes down, scroll and fling gestures from raw
// touch events and turns a fling on the photo into a dismiss.
package gesture

import (
	"math"
)

// Action is the kind of a touch event.
type Action string

const (
	Down Action = "down"
	Move Action = "move"
	Up   Action = "up"
)

// Event is one touch sample. T is in milliseconds.
type Event struct {
	Action Action  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	T      int64   `json:"t"`
}

// Kind is a recognized gesture.
type Kind int

const (
	None Kind = iota
	Pressed
	Scrolled
	Flung
)

func (k Kind) String() string {
	switch k {
	case Pressed:
		return "down"
	case Scrolled:
		return "scroll"
	case Flung:
		return "fling"
	default:
		return "none"
	}
}

// Gesture is the detector output for one event.
type Gesture struct {
	Kind   Kind
	DX, DY float64 // scroll delta since the previous sample
	VX, VY float64 // fling velocity in px/s
}

// velocityWindow bounds the samples used to estimate release velocity.
const velocityWindow = 100 // ms

type sample struct {
	x, y float64
	t    int64
}

// Detector is a single-pointer gesture detector.
type Detector struct {
	TouchSlop        float64 // px a pointer may travel before it scrolls
	MinFlingVelocity float64 // px/s

	tracking  bool
	scrolling bool
	downX     float64
	downY     float64
	samples   []sample
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(touchSlop, minFlingVelocity float64) *Detector {
	return &Detector{TouchSlop: touchSlop, MinFlingVelocity: minFlingVelocity}
}

// Reset drops any gesture in progress.
func (d *Detector) Reset() {
	d.tracking = false
	d.scrolling = false
	d.samples = d.samples[:0]
}

// Feed processes one event and returns the gesture it completes, if any.
func (d *Detector) Feed(ev Event) Gesture {
	switch ev.Action {
	case Down:
		d.Reset()
		d.tracking = true
		d.downX, d.downY = ev.X, ev.Y
		d.add(ev)
		return Gesture{Kind: Pressed}

	case Move:
		if !d.tracking {
			return Gesture{}
		}
		last := d.samples[len(d.samples)-1]
		d.add(ev)
		if !d.scrolling {
			if math.Hypot(ev.X-d.downX, ev.Y-d.downY) <= d.TouchSlop {
				return Gesture{}
			}
			d.scrolling = true
		}
		return Gesture{Kind: Scrolled, DX: ev.X - last.x, DY: ev.Y - last.y}

	case Up:
		if !d.tracking {
			return Gesture{}
		}
		d.add(ev)
		scrolling := d.scrolling
		vx, vy := d.velocity()
		d.Reset()
		if !scrolling {
			return Gesture{}
		}
		if math.Abs(vx) > d.MinFlingVelocity || math.Abs(vy) > d.MinFlingVelocity {
			return Gesture{Kind: Flung, VX: vx, VY: vy}
		}
	}
	return Gesture{}
}

func (d *Detector) add(ev Event) {
	d.samples = append(d.samples, sample{x: ev.X, y: ev.Y, t: ev.T})
}

// velocity estimates px/s from the oldest sample inside the window to
// the last one.
func (d *Detector) velocity() (float64, float64) {
	if len(d.samples) < 2 {
		return 0, 0
	}
	last := d.samples[len(d.samples)-1]
	first := last
	for i := len(d.samples) - 2; i >= 0; i-- {
		if last.t-d.samples[i].t > velocityWindow {
			break
		}
		first = d.samples[i]
	}
	dt := float64(last.t-first.t) / 1000
	if dt <= 0 {
		return 0, 0
	}
	return (last.x - first.x) / dt, (last.y - first.y) / dt
}
