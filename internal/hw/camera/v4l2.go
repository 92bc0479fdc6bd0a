//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// V4L2 opens USB/CSI cameras exposed as /dev/videoN that can stream
// MJPEG. Stills are taken by switching the stream to the capture size
// and keeping one frame.
type V4L2 struct {
	PathPattern  string        // e.g. "/dev/video%d"
	WarmupFrames int           // frames discarded after a format switch (auto exposure)
	FrameTimeout time.Duration // max wait for a still frame
}

// NewV4L2 creates a V4L2 camera subsystem.
func NewV4L2(pathPattern string) *V4L2 {
	return &V4L2{PathPattern: pathPattern, WarmupFrames: 3, FrameTimeout: 3 * time.Second}
}

// streamDevice is the part of a go4vl device used while streaming. A
// go4vl handle closes its output channel when a stream ends, so each
// stream runs on a freshly opened handle.
type streamDevice interface {
	SetPixFormat(v4l2.PixFormat) error
	Start(ctx context.Context) error
	GetOutput() <-chan []byte
	Stop() error
	Close() error
}

func openDevice(path string) (*device.Device, error) {
	dev, err := device.Open(path, device.WithBufferSize(2))
	if err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		if errors.Is(err, syscall.EBUSY) {
			return nil, fmt.Errorf("open %s: %w", path, ErrBusy)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return dev, nil
}

// Open acquires /dev/video<index> and enumerates its MJPEG frame sizes.
func (v *V4L2) Open(index int) (Device, error) {
	path := fmt.Sprintf(v.PathPattern, index)
	dev, err := openDevice(path)
	if err != nil {
		return nil, err
	}

	sizes, err := mjpegSizes(dev)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("enumerate %s: %w", path, err)
	}
	if len(sizes) == 0 {
		_ = dev.Close()
		return nil, fmt.Errorf("%s: no MJPEG frame sizes: %w", path, ErrNotFound)
	}
	debug.Verbose("V4L2 %s: %d MJPEG sizes", path, len(sizes))

	reopen := func() (streamDevice, error) {
		dev, err := openDevice(path)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	return &v4l2Device{cfg: v, path: path, dev: dev, reopen: reopen, sizes: sizes}, nil
}

func mjpegSizes(dev *device.Device) ([]Size, error) {
	enums, err := v4l2.GetAllFormatFrameSizes(dev.Fd())
	if err != nil {
		return nil, err
	}
	var sizes []Size
	seen := make(map[Size]bool)
	for _, e := range enums {
		if e.PixelFormat != v4l2.PixelFmtMJPEG {
			continue
		}
		// Discrete sizes report Min == Max; stepwise ranges contribute their maximum.
		s := Size{Width: int(e.Size.MaxWidth), Height: int(e.Size.MaxHeight)}
		if !seen[s] {
			seen[s] = true
			sizes = append(sizes, s)
		}
	}
	return sizes, nil
}

type v4l2Device struct {
	cfg    *V4L2
	path   string
	sizes  []Size
	reopen func() (streamDevice, error)

	mu         sync.Mutex
	dev        streamDevice
	streamed   bool // dev has run a stream and must be reopened
	releasing  bool
	params     Parameters
	display    Display
	cancel     context.CancelFunc
	streaming  sync.WaitGroup
	capturing  bool
	grabCancel context.CancelFunc
	grabbing   sync.WaitGroup
}

func (d *v4l2Device) SupportedPreviewSizes() []Size { return append([]Size(nil), d.sizes...) }

// PreferredPreviewSize: V4L2 has no notion of a preferred size.
func (d *v4l2Device) PreferredPreviewSize() (Size, bool) { return Size{}, false }

func (d *v4l2Device) SupportedCaptureSizes() []Size { return append([]Size(nil), d.sizes...) }

func (d *v4l2Device) SetParameters(p Parameters) error {
	if p.Encoding != EncodingJPEG {
		return fmt.Errorf("%s: unsupported encoding %q", d.path, p.Encoding)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return fmt.Errorf("%s: released", d.path)
	}
	d.params = p
	return nil
}

func (d *v4l2Device) BindDisplay(disp Display) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.display = disp
	return nil
}

// stream switches the device to size and starts streaming. Caller holds d.mu.
func (d *v4l2Device) stream(ctx context.Context, size Size) (<-chan []byte, context.CancelFunc, error) {
	if d.dev == nil || d.releasing {
		return nil, nil, fmt.Errorf("%s: released", d.path)
	}
	if d.streamed {
		if err := d.dev.Close(); err != nil {
			debug.Error("v4l2.stream", err)
		}
		dev, err := d.reopen()
		if err != nil {
			d.dev = nil
			return nil, nil, fmt.Errorf("%s: reopen: %w", d.path, err)
		}
		d.dev = dev
		d.streamed = false
	}
	if err := d.dev.SetPixFormat(v4l2.PixFormat{
		PixelFormat: v4l2.PixelFmtMJPEG,
		Width:       uint32(size.Width),
		Height:      uint32(size.Height),
	}); err != nil {
		return nil, nil, fmt.Errorf("%s: set format %s: %w", d.path, size, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := d.dev.Start(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s: start stream: %w", d.path, err)
	}
	d.streamed = true
	return d.dev.GetOutput(), cancel, nil
}

func (d *v4l2Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}
	frames, cancel, err := d.stream(ctx, d.params.PreviewSize)
	if err != nil {
		return err
	}
	d.cancel = cancel
	disp := d.display
	d.streaming.Add(1)
	go func() {
		defer d.streaming.Done()
		for frame := range frames {
			if disp == nil {
				continue
			}
			cp := make([]byte, len(frame))
			copy(cp, frame)
			if err := disp.Render(cp); err != nil {
				debug.Trace("%s: frame refused: %v", d.path, err)
			}
		}
	}()
	return nil
}

func (d *v4l2Device) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	dev := d.dev
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	var err error
	if dev != nil {
		err = dev.Stop()
	}
	d.streaming.Wait()
	return err
}

func (d *v4l2Device) CaptureStill(onShutter ShutterFunc, onImage ImageFunc, onError ErrorFunc) error {
	d.mu.Lock()
	if d.dev == nil || d.releasing {
		d.mu.Unlock()
		return fmt.Errorf("%s: released", d.path)
	}
	if d.capturing {
		d.mu.Unlock()
		return ErrBusy
	}
	d.capturing = true
	d.grabbing.Add(1)
	d.mu.Unlock()

	if err := d.Stop(); err != nil {
		debug.Error("v4l2.CaptureStill", err)
	}

	go func() {
		defer d.grabbing.Done()
		defer func() {
			d.mu.Lock()
			d.capturing = false
			d.mu.Unlock()
		}()
		data, err := d.grabStill(onShutter)
		if err != nil {
			onError(err)
			return
		}
		onImage(data)
	}()
	return nil
}

func (d *v4l2Device) grabStill(onShutter ShutterFunc) ([]byte, error) {
	d.mu.Lock()
	frames, cancel, err := d.stream(context.Background(), d.params.CaptureSize)
	dev := d.dev
	if err == nil {
		d.grabCancel = cancel
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer func() {
		d.mu.Lock()
		d.grabCancel = nil
		d.mu.Unlock()
		cancel()
		// The stream loop only sees the cancellation once it is not
		// blocked sending a frame.
		for range frames {
		}
		_ = dev.Stop()
	}()

	timer := time.NewTimer(d.cfg.FrameTimeout)
	defer timer.Stop()
	skip := d.cfg.WarmupFrames
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return nil, fmt.Errorf("%s: stream closed during capture", d.path)
			}
			if skip > 0 {
				skip--
				continue
			}
			onShutter()
			cp := make([]byte, len(frame))
			copy(cp, frame)
			return cp, nil
		case <-timer.C:
			return nil, fmt.Errorf("%s: still frame timeout after %v", d.path, d.cfg.FrameTimeout)
		}
	}
}

// Release stops the live feed, aborts an in-flight still grab and waits
// for it before closing the handle.
func (d *v4l2Device) Release() error {
	if err := d.Stop(); err != nil {
		debug.Error("v4l2.Release", err)
	}
	d.mu.Lock()
	d.releasing = true
	grabCancel := d.grabCancel
	d.mu.Unlock()
	if grabCancel != nil {
		grabCancel()
	}
	d.grabbing.Wait()

	d.mu.Lock()
	dev := d.dev
	d.dev = nil
	d.display = nil
	d.mu.Unlock()
	if dev == nil {
		return nil
	}
	debug.Verbose("V4L2 %s released", d.path)
	return dev.Close()
}
