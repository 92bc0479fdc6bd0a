//go:build !linux

package camera

import "fmt"

// V4L2 is only available on Linux.
type V4L2 struct {
	PathPattern string
}

// NewV4L2 creates a V4L2 camera subsystem.
func NewV4L2(pathPattern string) *V4L2 {
	return &V4L2{PathPattern: pathPattern}
}

// Open always fails off Linux.
func (v *V4L2) Open(index int) (Device, error) {
	return nil, fmt.Errorf("v4l2 camera %d: not supported on this platform: %w", index, ErrNotFound)
}
