// Package session owns the hardware camera handle and drives its
// open/configure/preview/capture state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/looplab/fsm"
	"github.com/oklog/ulid/v2"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/surface"
	"github.com/cjeanneret/SnapGo/internal/loop"
)

// State is the session state.
type State string

const (
	Closed     State = "closed"
	Opening    State = "opening"
	Configured State = "configured"
	Previewing State = "previewing"
)

const (
	evOpen      = "open"
	evConfigure = "configure"
	evStart     = "start"
	evCaptured  = "captured"
	evClose     = "close"
)

// Authorizer grants access to a capability.
type Authorizer interface {
	Authorize(c permission.Capability) error
}

// Options are the configuration choices applied on open.
type Options struct {
	DeviceIndex      int
	PreferredPreview camera.Size
	CapturePolicy    string
	CaptureIndex     int
	CaptureSize      camera.Size
	RotationDegrees  int
}

// OptionsFromConfig maps the camera config section to session options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeviceIndex:      cfg.Camera.DeviceIndex,
		PreferredPreview: camera.Size{Width: cfg.Camera.PreviewSize.Width, Height: cfg.Camera.PreviewSize.Height},
		CapturePolicy:    cfg.Camera.CaptureSizePolicy,
		CaptureIndex:     cfg.Camera.CaptureIndex,
		CaptureSize:      camera.Size{Width: cfg.Camera.CaptureSize.Width, Height: cfg.Camera.CaptureSize.Height},
		RotationDegrees:  cfg.Rotation(),
	}
}

// Request identifies one still capture.
type Request struct {
	ID     string
	Issued time.Time
}

// Handler receives the two completion phases of a still capture, then
// exactly one of OnImageReady or OnCaptureFailed. Calls run on the
// event loop.
type Handler interface {
	OnShutter(req Request)
	OnImageReady(req Request, data []byte)
	OnCaptureFailed(req Request, err error)
}

// Session is the camera session. All methods must be called from the
// event loop; hardware callbacks are posted back onto it.
type Session struct {
	opener camera.Opener
	auth   Authorizer
	disp   loop.Dispatcher
	opts   Options

	machine *fsm.FSM
	device  camera.Device
	surface *surface.Surface
	params  camera.Parameters
	pending *Request
	// generation changes on every release so that late hardware
	// callbacks of a previous handle are dropped.
	generation uint64

	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates a closed session.
func New(opener camera.Opener, auth Authorizer, disp loop.Dispatcher, opts Options) *Session {
	s := &Session{
		opener:  opener,
		auth:    auth,
		disp:    disp,
		opts:    opts,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
	s.machine = fsm.NewFSM(
		string(Closed),
		fsm.Events{
			{Name: evOpen, Src: []string{string(Closed)}, Dst: string(Opening)},
			{Name: evConfigure, Src: []string{string(Opening)}, Dst: string(Configured)},
			{Name: evStart, Src: []string{string(Configured)}, Dst: string(Previewing)},
			{Name: evCaptured, Src: []string{string(Previewing)}, Dst: string(Configured)},
			{Name: evClose, Src: []string{string(Opening), string(Configured), string(Previewing)}, Dst: string(Closed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				debug.Transition("session", e.Src, e.Dst)
			},
		},
	)
	return s
}

// State returns the current state.
func (s *Session) State() State { return State(s.machine.Current()) }

// ActiveParameters returns the parameters fixed at open time.
func (s *Session) ActiveParameters() (camera.Parameters, bool) {
	if s.State() == Closed || s.State() == Opening {
		return camera.Parameters{}, false
	}
	return s.params, true
}

// Pending reports whether a capture is outstanding.
func (s *Session) Pending() bool { return s.pending != nil }

func (s *Session) fire(ctx context.Context, event string) {
	if err := s.machine.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			debug.Error("session."+event, err)
		}
	}
}

// Open acquires the camera, configures it and starts the live feed into
// surf. Any failure leaves the session Closed with the handle released.
func (s *Session) Open(ctx context.Context, surf *surface.Surface) error {
	if err := s.auth.Authorize(permission.Camera); err != nil {
		return err
	}
	if s.State() != Closed {
		return domain.NewError("session.Open", domain.ErrDeviceUnavailable, "session is "+string(s.State()))
	}
	if !surf.Valid() {
		return domain.NewError("session.Open", domain.ErrSurfaceInvalid, surf.String())
	}

	s.fire(ctx, evOpen)
	dev, err := s.opener.Open(s.opts.DeviceIndex)
	if err != nil {
		s.fire(ctx, evClose)
		return domain.Wrap("session.Open", domain.ErrDeviceUnavailable, err)
	}
	s.device = dev
	s.surface = surf

	params, err := s.choose(dev)
	if err == nil {
		err = dev.SetParameters(params)
	}
	if err != nil {
		s.Release()
		return domain.Wrap("session.Open", domain.ErrDeviceUnavailable, err)
	}
	s.params = params
	s.fire(ctx, evConfigure)
	debug.PrintStruct("Camera parameters", params)

	if err := dev.BindDisplay(surf); err != nil {
		s.Release()
		return domain.Wrap("session.Open", domain.ErrSurfaceInvalid, err)
	}
	if err := dev.Start(ctx); err != nil {
		s.Release()
		return domain.Wrap("session.Open", domain.ErrDeviceUnavailable, err)
	}
	s.fire(ctx, evStart)
	return nil
}

func (s *Session) choose(dev camera.Device) (camera.Parameters, error) {
	preview, err := choosePreview(dev, s.opts.PreferredPreview)
	if err != nil {
		return camera.Parameters{}, err
	}
	capture, err := chooseCapture(dev.SupportedCaptureSizes(), s.opts)
	if err != nil {
		return camera.Parameters{}, err
	}
	return camera.Parameters{
		PreviewSize:     preview,
		CaptureSize:     capture,
		RotationDegrees: s.opts.RotationDegrees,
		Encoding:        camera.EncodingJPEG,
	}, nil
}

// choosePreview prefers the configured size when the device supports it,
// then the device-preferred size, then the first supported one.
func choosePreview(dev camera.Device, preferred camera.Size) (camera.Size, error) {
	sizes := dev.SupportedPreviewSizes()
	if len(sizes) == 0 {
		return camera.Size{}, fmt.Errorf("no preview sizes")
	}
	if !preferred.IsZero() && contains(sizes, preferred) {
		return preferred, nil
	}
	if p, ok := dev.PreferredPreviewSize(); ok {
		return p, nil
	}
	return sizes[0], nil
}

func chooseCapture(sizes []camera.Size, opts Options) (camera.Size, error) {
	if len(sizes) == 0 {
		return camera.Size{}, fmt.Errorf("no capture sizes")
	}
	switch opts.CapturePolicy {
	case config.PolicyIndex:
		if opts.CaptureIndex < 0 || opts.CaptureIndex >= len(sizes) {
			return camera.Size{}, fmt.Errorf("capture index %d out of range (%d sizes)", opts.CaptureIndex, len(sizes))
		}
		return sizes[opts.CaptureIndex], nil
	case config.PolicyExplicit:
		if !contains(sizes, opts.CaptureSize) {
			return camera.Size{}, fmt.Errorf("capture size %s not supported", opts.CaptureSize)
		}
		return opts.CaptureSize, nil
	default:
		return sizes[0], nil
	}
}

func contains(sizes []camera.Size, want camera.Size) bool {
	for _, s := range sizes {
		if s == want {
			return true
		}
	}
	return false
}

// RequestStill starts a still capture. Only one may be outstanding.
func (s *Session) RequestStill(h Handler) (Request, error) {
	if s.State() != Previewing {
		return Request{}, domain.NewError("session.RequestStill", domain.ErrNotPreviewing, "session is "+string(s.State()))
	}
	if s.pending != nil {
		return Request{}, domain.NewError("session.RequestStill", domain.ErrCaptureBusy, "request "+s.pending.ID)
	}

	issued := s.now()
	req := Request{ID: ulid.MustNew(ulid.Timestamp(issued), s.entropy).String(), Issued: issued}
	gen := s.generation

	err := s.device.CaptureStill(
		func() {
			s.disp.Post(func() {
				if s.current(gen, req) {
					h.OnShutter(req)
				}
			})
		},
		func(data []byte) {
			s.disp.Post(func() {
				if !s.current(gen, req) {
					debug.Verbose("Dropping image of stale request %s", req.ID)
					return
				}
				s.pending = nil
				s.fire(context.Background(), evCaptured)
				h.OnImageReady(req, data)
			})
		},
		func(err error) {
			s.disp.Post(func() {
				if !s.current(gen, req) {
					return
				}
				s.pending = nil
				s.fire(context.Background(), evCaptured)
				h.OnCaptureFailed(req, err)
			})
		},
	)
	if err != nil {
		if errors.Is(err, camera.ErrBusy) {
			return Request{}, domain.Wrap("session.RequestStill", domain.ErrCaptureBusy, err)
		}
		return Request{}, domain.Wrap("session.RequestStill", domain.ErrDeviceUnavailable, err)
	}
	s.pending = &req
	debug.Shot(req.ID)
	return req, nil
}

func (s *Session) current(gen uint64, req Request) bool {
	return gen == s.generation && s.pending != nil && s.pending.ID == req.ID
}

// ResumePreview restarts the live feed after a still capture.
func (s *Session) ResumePreview(ctx context.Context) error {
	switch s.State() {
	case Previewing:
		return nil
	case Configured:
	default:
		return domain.NewError("session.ResumePreview", domain.ErrNotPreviewing, "session is "+string(s.State()))
	}
	if !s.surface.Valid() {
		return domain.NewError("session.ResumePreview", domain.ErrSurfaceInvalid, s.surface.String())
	}
	if err := s.device.Start(ctx); err != nil {
		return domain.Wrap("session.ResumePreview", domain.ErrDeviceUnavailable, err)
	}
	s.fire(ctx, evStart)
	return nil
}

// Release stops the feed and gives the device back. It is idempotent
// and never fails; hardware errors are logged.
func (s *Session) Release() {
	s.generation++
	s.pending = nil
	s.surface = nil
	s.params = camera.Parameters{}
	if dev := s.device; dev != nil {
		s.device = nil
		if err := dev.Stop(); err != nil {
			debug.Error("session.Release stop", err)
		}
		if err := dev.Release(); err != nil {
			debug.Error("session.Release", err)
		}
	}
	if s.State() != Closed {
		s.fire(context.Background(), evClose)
	}
}
