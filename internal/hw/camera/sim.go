package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// SimConfig describes the simulated camera.
type SimConfig struct {
	Devices        int           // number of indices that exist (default 1)
	PreviewSizes   []Size        // device-reported preview sizes
	CaptureSizes   []Size        // device-reported capture sizes
	FrameInterval  time.Duration // preview frame period
	ShutterDelay   time.Duration // time between CaptureStill and the shutter event
	EncodeDelay    time.Duration // time between the shutter and the image
	PreviewQuality int           // JPEG quality of preview frames
	StillQuality   int           // JPEG quality of stills
}

// Sim is a software camera used on development machines and in tests.
// It enforces exclusive ownership like real hardware: a second Open while
// a handle is held fails with ErrBusy.
type Sim struct {
	cfg SimConfig

	mu   sync.Mutex
	held bool
}

// NewSim creates a simulated camera subsystem.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Devices <= 0 {
		cfg.Devices = 1
	}
	if len(cfg.PreviewSizes) == 0 {
		cfg.PreviewSizes = []Size{{640, 480}}
	}
	if len(cfg.CaptureSizes) == 0 {
		cfg.CaptureSizes = []Size{{1280, 720}}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 100 * time.Millisecond
	}
	if cfg.PreviewQuality <= 0 {
		cfg.PreviewQuality = 60
	}
	if cfg.StillQuality <= 0 {
		cfg.StillQuality = 95
	}
	return &Sim{cfg: cfg}
}

// Open acquires the simulated device at index.
func (s *Sim) Open(index int) (Device, error) {
	if index < 0 || index >= s.cfg.Devices {
		return nil, fmt.Errorf("sim camera %d: %w", index, ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return nil, fmt.Errorf("sim camera %d: %w", index, ErrBusy)
	}
	s.held = true
	debug.Verbose("Sim camera %d opened", index)
	return &simDevice{sim: s, index: index}, nil
}

// Held reports whether a handle is currently open.
func (s *Sim) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

func (s *Sim) unhold() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
}

type simDevice struct {
	sim   *Sim
	index int

	mu        sync.Mutex
	params    Parameters
	display   Display
	cancel    context.CancelFunc
	streaming sync.WaitGroup
	capturing bool
	released  bool
	frame     uint64
}

func (d *simDevice) SupportedPreviewSizes() []Size {
	return append([]Size(nil), d.sim.cfg.PreviewSizes...)
}

func (d *simDevice) PreferredPreviewSize() (Size, bool) {
	return d.sim.cfg.PreviewSizes[0], true
}

func (d *simDevice) SupportedCaptureSizes() []Size {
	return append([]Size(nil), d.sim.cfg.CaptureSizes...)
}

func (d *simDevice) SetParameters(p Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("sim camera %d: released", d.index)
	}
	if p.Encoding != EncodingJPEG {
		return fmt.Errorf("sim camera %d: unsupported encoding %q", d.index, p.Encoding)
	}
	d.params = p
	return nil
}

func (d *simDevice) BindDisplay(disp Display) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.display = disp
	return nil
}

func (d *simDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("sim camera %d: released", d.index)
	}
	if d.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.streaming.Add(1)
	go d.stream(ctx, d.params.PreviewSize, d.display)
	return nil
}

func (d *simDevice) stream(ctx context.Context, size Size, disp Display) {
	defer d.streaming.Done()
	ticker := time.NewTicker(d.sim.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if disp == nil {
				continue
			}
			d.mu.Lock()
			d.frame++
			n := d.frame
			d.mu.Unlock()
			data, err := testPattern(size, n, d.sim.cfg.PreviewQuality)
			if err != nil {
				debug.Error("sim.stream", err)
				continue
			}
			if err := disp.Render(data); err != nil {
				debug.Trace("sim camera %d: frame %d refused: %v", d.index, n, err)
			} else if debug.IsEnabled(debug.LevelTrace) {
				debug.Trace("sim camera %d: frame %d %s (%d bytes)", d.index, n, size, len(data))
			}
		}
	}
}

func (d *simDevice) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		d.streaming.Wait()
	}
	return nil
}

func (d *simDevice) CaptureStill(onShutter ShutterFunc, onImage ImageFunc, onError ErrorFunc) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return fmt.Errorf("sim camera %d: released", d.index)
	}
	if d.capturing {
		d.mu.Unlock()
		return ErrBusy
	}
	d.capturing = true
	size := d.params.CaptureSize
	d.mu.Unlock()

	// A still halts the live feed, as the hardware path does.
	_ = d.Stop()

	go func() {
		defer func() {
			d.mu.Lock()
			d.capturing = false
			d.mu.Unlock()
		}()
		time.Sleep(d.sim.cfg.ShutterDelay)
		onShutter()
		time.Sleep(d.sim.cfg.EncodeDelay)
		d.mu.Lock()
		d.frame++
		n := d.frame
		d.mu.Unlock()
		data, err := testPattern(size, n, d.sim.cfg.StillQuality)
		if err != nil {
			onError(err)
			return
		}
		onImage(data)
	}()
	return nil
}

func (d *simDevice) Release() error {
	_ = d.Stop()
	d.mu.Lock()
	already := d.released
	d.released = true
	d.display = nil
	d.mu.Unlock()
	if !already {
		d.sim.unhold()
		debug.Verbose("Sim camera %d released", d.index)
	}
	return nil
}

// testPattern renders a JPEG whose colour drifts with n so that
// consecutive frames differ.
func testPattern(size Size, n uint64, quality int) ([]byte, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %s", size)
	}
	bg := color.NRGBA{R: uint8(n * 7), G: uint8(n * 13), B: 160, A: 255}
	img := imaging.New(size.Width, size.Height, bg)
	bar := imaging.New(size.Width/8+1, size.Height, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	x := int(n*16) % size.Width
	img = imaging.Paste(img, bar, image.Pt(x, 0))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
