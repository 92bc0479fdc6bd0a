// Package surface models the renderable display surface and its
// created/changed/destroyed lifecycle.
package surface

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cjeanneret/SnapGo/internal/domain"
)

// PixelFormat describes how the surface consumes frames.
type PixelFormat string

const FormatJPEG PixelFormat = "jpeg"

// Sink receives frames rendered into a surface.
type Sink func(frame []byte) error

// Surface is a display surface owned by its provider (a viewer
// connection). Other components hold non-owning references and must
// not render once it is invalid.
type Surface struct {
	ID   string
	sink Sink

	valid atomic.Bool

	mu     sync.RWMutex
	format PixelFormat
	width  int
	height int
}

// New creates a valid surface delivering frames to sink.
func New(sink Sink, width, height int) *Surface {
	s := &Surface{
		ID:     uuid.NewString(),
		sink:   sink,
		format: FormatJPEG,
		width:  width,
		height: height,
	}
	s.valid.Store(true)
	return s
}

// Valid reports whether the surface can still be rendered into.
func (s *Surface) Valid() bool { return s != nil && s.valid.Load() }

// Invalidate marks the surface destroyed. Further renders are refused.
func (s *Surface) Invalidate() { s.valid.Store(false) }

// Resize records a new format and size.
func (s *Surface) Resize(format PixelFormat, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.width = width
	s.height = height
}

// Format returns the current pixel format and size.
func (s *Surface) Format() (PixelFormat, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format, s.width, s.height
}

// Render hands one frame to the sink. It is safe to call from a
// hardware goroutine.
func (s *Surface) Render(frame []byte) error {
	if !s.Valid() {
		return domain.NewError("surface.Render", domain.ErrSurfaceInvalid, s.String())
	}
	if s.sink == nil {
		return nil
	}
	return s.sink(frame)
}

func (s *Surface) String() string {
	if s == nil {
		return "surface(nil)"
	}
	return fmt.Sprintf("surface(%s)", s.ID)
}
