package camera

import (
	"context"
	"fmt"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

// Encoding is the compressed still format produced by the hardware.
type Encoding string

const (
	EncodingJPEG Encoding = "jpeg"
)

// Parameters is the configuration applied to an open device.
type Parameters struct {
	PreviewSize     Size
	CaptureSize     Size
	RotationDegrees int
	Encoding        Encoding
}

// Display is the live render target for preview frames. Frames are
// compressed (JPEG) images. Implementations refuse frames once invalid.
type Display interface {
	Render(frame []byte) error
}

// ShutterFunc fires when the hardware shutter event happens.
type ShutterFunc func()

// ImageFunc receives the full encoded still.
type ImageFunc func(data []byte)

// ErrorFunc receives a hardware capture failure.
type ErrorFunc func(err error)

// Device is an open, exclusively held hardware camera.
//
// CaptureStill returns immediately. The callbacks run on a hardware
// goroutine: onShutter first, then exactly one of onImage or onError.
// The live feed is halted by a still capture; call Start to resume it.
type Device interface {
	SupportedPreviewSizes() []Size
	PreferredPreviewSize() (Size, bool)
	SupportedCaptureSizes() []Size
	SetParameters(p Parameters) error
	BindDisplay(d Display) error
	Start(ctx context.Context) error
	Stop() error
	CaptureStill(onShutter ShutterFunc, onImage ImageFunc, onError ErrorFunc) error
	Release() error
}

// Opener acquires a hardware camera by index.
type Opener interface {
	Open(index int) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(index int) (Device, error)

// Open calls f(index).
func (f OpenerFunc) Open(index int) (Device, error) { return f(index) }

// ErrBusy is returned by Open when the device is already held, and by
// CaptureStill when a capture is already running.
var ErrBusy = fmt.Errorf("camera busy")

// ErrNotFound is returned by Open when no device exists at the index.
var ErrNotFound = fmt.Errorf("camera not found")
