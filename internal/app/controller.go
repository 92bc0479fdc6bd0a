// Package app wires permission, surface, session, capture, view and
// gesture handling together. Every method runs on the event loop.
package app

import (
	"context"
	"errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/gesture"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/session"
	"github.com/cjeanneret/SnapGo/internal/logic/surface"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
)

// Status is a read-only snapshot for the viewer and the HTTP API.
type Status struct {
	View        view.State    `json:"view"`
	Regions     view.Regions  `json:"regions"`
	Session     session.State `json:"session"`
	Camera      string        `json:"camera_permission"`
	Storage     string        `json:"storage_permission"`
	PreviewSize string        `json:"preview_size,omitempty"`
	CaptureSize string        `json:"capture_size,omitempty"`
	Surface     string        `json:"surface,omitempty"`
	Capturing   bool          `json:"capturing"`
	PhotoPath   string        `json:"photo_path,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Deps are the components the controller coordinates.
type Deps struct {
	Gate     *permission.Gate
	Session  *session.Session
	Pipeline *capture.Pipeline
	View     *view.Controller
	Detector *gesture.Detector
}

// Controller is the application controller.
type Controller struct {
	ctx       context.Context
	gate      *permission.Gate
	session   *session.Session
	pipeline  *capture.Pipeline
	view      *view.Controller
	router    *gesture.Router
	lifecycle *surface.Lifecycle

	// deferred is the surface whose open waits for the camera grant.
	deferred  *surface.Surface
	lastPhoto string
	lastErr   error

	// ShutterHook, when set, runs on every shutter event.
	ShutterHook func()
}

// New creates a controller. ctx bounds the live preview of every open.
func New(ctx context.Context, d Deps) *Controller {
	c := &Controller{
		ctx:      ctx,
		gate:     d.Gate,
		session:  d.Session,
		pipeline: d.Pipeline,
		view:     d.View,
		router:   gesture.NewRouter(d.View, d.Detector),
	}
	c.lifecycle = surface.NewLifecycle(binder{c})
	c.gate.OnChange = c.permissionsChanged
	c.view.OnResume = c.resumePreview
	return c
}

// Start checks permissions and requests the missing ones.
func (c *Controller) Start() {
	debug.Section("Startup")
	c.gate.CheckAndRequest()
}

// AddPresenter registers a region presenter.
func (c *Controller) AddPresenter(p view.Presenter) { c.view.AddPresenter(p) }

// SurfaceCreated starts a surface Valid period.
func (c *Controller) SurfaceCreated(s *surface.Surface) { c.lifecycle.OnCreated(s) }

// SurfaceChanged records a surface format change.
func (c *Controller) SurfaceChanged(format surface.PixelFormat, w, h int) {
	c.lifecycle.OnChanged(format, w, h)
}

// SurfaceDestroyed ends the Valid period and releases the camera.
func (c *Controller) SurfaceDestroyed() { c.lifecycle.OnDestroyed() }

// Surface returns the current surface, nil when none is valid.
func (c *Controller) Surface() *surface.Surface { return c.lifecycle.Current() }

// binder adapts the controller to surface.Binder.
type binder struct{ c *Controller }

func (b binder) Open(s *surface.Surface) { b.c.open(s) }
func (b binder) Release()                { b.c.release() }

func (c *Controller) open(s *surface.Surface) {
	if c.gate.Pending() && c.gate.Set().Camera == permission.Unknown {
		debug.Live("Camera permission pending, open deferred for %s", s)
		c.deferred = s
		return
	}
	c.deferred = nil
	if err := c.session.Open(c.ctx, s); err != nil {
		c.fail("open", err)
		return
	}
	c.lastErr = nil
	if p, ok := c.session.ActiveParameters(); ok {
		debug.Info("Preview %s, capture %s, rotation %d", p.PreviewSize, p.CaptureSize, p.RotationDegrees)
	}
}

func (c *Controller) release() {
	c.deferred = nil
	c.session.Release()
}

func (c *Controller) permissionsChanged(set permission.Set) {
	if set.Camera == permission.Denied {
		c.lastErr = domain.NewError("app.permissions", domain.ErrPermissionDenied, "camera access refused")
	}
	s := c.deferred
	c.deferred = nil
	if s == nil {
		return
	}
	if !s.Valid() || c.lifecycle.Current() != s {
		debug.Verbose("Deferred surface %s gone, not opening", s)
		return
	}
	c.open(s)
}

// Capture requests a still. It is inert unless the live preview is on
// screen; ErrCaptureBusy is reported while a capture is outstanding.
func (c *Controller) Capture() error {
	if c.view.State() != view.Preview {
		return domain.NewError("app.Capture", domain.ErrNotPreviewing, "photo on screen")
	}
	if _, err := c.session.RequestStill(c); err != nil {
		if !errors.Is(err, domain.ErrCaptureBusy) {
			debug.Verbose("Capture ignored: %v", err)
		}
		return err
	}
	return nil
}

// Touch routes a touch event to the gesture router.
func (c *Controller) Touch(ev gesture.Event) bool { return c.router.OnTouch(ev) }

// OnShutter implements session.Handler.
func (c *Controller) OnShutter(req session.Request) {
	debug.Live("Shutter %s", req.ID)
	if c.ShutterHook != nil {
		c.ShutterHook()
	}
}

// OnImageReady implements session.Handler.
func (c *Controller) OnImageReady(req session.Request, data []byte) {
	debug.Verbose("Image %s ready: %d bytes", req.ID, len(data))
	img, err := c.pipeline.HandleImageReady(data)
	switch {
	case errors.Is(err, domain.ErrDecode):
		c.fail("decode", err)
		c.view.CaptureCompleted(nil)
	case errors.Is(err, domain.ErrIO):
		c.fail("save", err)
		c.view.CaptureCompleted(img)
	case err != nil:
		c.fail("capture", err)
		c.view.CaptureCompleted(nil)
	default:
		c.lastErr = nil
		c.lastPhoto = img.Path
		c.view.CaptureCompleted(img)
	}
}

// OnCaptureFailed implements session.Handler.
func (c *Controller) OnCaptureFailed(req session.Request, err error) {
	c.fail("capture "+req.ID, err)
	c.resumePreview()
}

func (c *Controller) resumePreview() {
	if err := c.session.ResumePreview(c.ctx); err != nil {
		debug.Verbose("Preview not resumed: %v", err)
	}
}

func (c *Controller) fail(op string, err error) {
	c.lastErr = err
	debug.Error(op, err)
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Status {
	set := c.gate.Set()
	st := Status{
		View:      c.view.State(),
		Regions:   view.RegionsFor(c.view.State()),
		Session:   c.session.State(),
		Camera:    set.Camera.String(),
		Storage:   set.Storage.String(),
		Capturing: c.session.Pending(),
		PhotoPath: c.lastPhoto,
	}
	if p, ok := c.session.ActiveParameters(); ok {
		st.PreviewSize = p.PreviewSize.String()
		st.CaptureSize = p.CaptureSize.String()
	}
	if s := c.lifecycle.Current(); s != nil {
		st.Surface = s.ID
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
		if domain.IsUserVisible(c.lastErr) {
			st.Error = "Camera permission is required"
		}
	}
	return st
}

// Photo returns the photo on screen, nil when none.
func (c *Controller) Photo() *capture.Image { return c.view.Photo() }
