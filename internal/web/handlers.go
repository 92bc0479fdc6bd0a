package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/app"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/gesture"
	"github.com/cjeanneret/SnapGo/internal/logic/surface"
)

// photoQuality is the JPEG quality of GET /photo.
const photoQuality = 90

// Backend is the application side of the viewer. Its methods must run on
// the event loop, through Caller.
type Backend interface {
	SurfaceCreated(s *surface.Surface)
	SurfaceChanged(format surface.PixelFormat, w, h int)
	SurfaceDestroyed()
	Surface() *surface.Surface
	Capture() error
	Touch(ev gesture.Event) bool
	Snapshot() app.Status
	Photo() *capture.Image
}

// Caller runs a function on the event loop and waits for it.
type Caller interface {
	Call(ctx context.Context, fn func() error) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Backend     Backend
	Loop        Caller
	Hub         *Hub

	// OriginPatterns are extra hosts allowed to open the surface
	// websocket besides same-origin pages.
	OriginPatterns []string

	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If backend is nil, every camera endpoint returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, backend Backend, loop Caller, hub *Hub, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Backend:     backend,
		Loop:        loop,
		Hub:         hub,
		staticFS:    staticFS,
	}
}

func (h *Handlers) call(ctx context.Context, fn func() error) error {
	if h.Backend == nil || h.Loop == nil {
		return errNotReady
	}
	return h.Loop.Call(ctx, fn)
}

var errNotReady = errors.New("camera backend not configured")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Error("web.writeJSON", err)
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState handles GET /state with a JSON snapshot.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	var st app.Status
	err := h.call(r.Context(), func() error {
		st = h.Backend.Snapshot()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleCapture handles POST /capture to take a still.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var capErr error
	err := h.call(r.Context(), func() error {
		capErr = h.Backend.Capture()
		return nil
	})
	switch {
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(capErr, domain.ErrCaptureBusy):
		http.Error(w, "capture already in progress", http.StatusConflict)
	case capErr != nil:
		http.Error(w, capErr.Error(), http.StatusServiceUnavailable)
	default:
		h.Broadcaster.BroadcastMsg("Capture started")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// HandlePhoto handles GET /photo with the photo on screen as JPEG.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	var img *capture.Image
	err := h.call(r.Context(), func() error {
		img = h.Backend.Photo()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if img == nil || img.Bitmap == nil {
		http.Error(w, "no photo", http.StatusNotFound)
		return
	}
	data, err := capture.EncodeJPEG(img.Bitmap, photoQuality)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
