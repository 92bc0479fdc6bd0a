package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/gesture"
	"github.com/cjeanneret/SnapGo/internal/logic/surface"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
	"github.com/cjeanneret/SnapGo/internal/loop"
)

// Message types exchanged over the surface websocket.
const (
	msgResize  = "resize"
	msgTouch   = "touch"
	msgCapture = "capture"
	msgState   = "state"
	msgShutter = "shutter"
	msgError   = "error"
)

// clientMessage is a message from the viewer page.
type clientMessage struct {
	Type   string         `json:"type"`
	Width  int            `json:"width,omitempty"`
	Height int            `json:"height,omitempty"`
	Action gesture.Action `json:"action,omitempty"`
	X      float64        `json:"x,omitempty"`
	Y      float64        `json:"y,omitempty"`
	T      int64          `json:"t,omitempty"`
}

// serverMessage is a JSON message to the viewer page. Preview frames are
// sent as binary messages instead.
type serverMessage struct {
	Type    string        `json:"type"`
	View    view.State    `json:"view,omitempty"`
	Regions *view.Regions `json:"regions,omitempty"`
	Photo   string        `json:"photo,omitempty"`
	Error   string        `json:"error,omitempty"`

	// Orientation is the clockwise rotation in degrees the page applies
	// to preview frames. Set on state messages only.
	Orientation *int `json:"orientation,omitempty"`
}

// viewer is one connected display surface.
type viewer struct {
	conn   *websocket.Conn
	frames chan []byte
	events chan serverMessage
	done   chan struct{}
}

func newViewer(conn *websocket.Conn) *viewer {
	return &viewer{
		conn:   conn,
		frames: make(chan []byte, 1),
		events: make(chan serverMessage, 16),
		done:   make(chan struct{}),
	}
}

// sink keeps only the newest frame. It never blocks the camera goroutine.
func (v *viewer) sink(frame []byte) error {
	for {
		select {
		case v.frames <- frame:
			return nil
		default:
		}
		select {
		case <-v.frames:
		default:
		}
	}
}

func (v *viewer) send(m serverMessage) {
	select {
	case v.events <- m:
	default:
		debug.Trace("viewer: event %s dropped", m.Type)
	}
}

func (v *viewer) writeLoop() {
	for {
		var err error
		select {
		case <-v.done:
			return
		case m := <-v.events:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = wsjson.Write(ctx, v.conn, m)
			cancel()
		case f := <-v.frames:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = v.conn.Write(ctx, websocket.MessageBinary, f)
			cancel()
		}
		if err != nil {
			debug.Verbose("viewer: write failed: %v", err)
			return
		}
	}
}

// Hub admits a single viewer at a time and presents view changes to it.
type Hub struct {
	orientation int

	mu     sync.Mutex
	active *viewer
	busy   bool
	seq    int64
}

// NewHub creates an empty hub. displayOrientation is the clockwise
// rotation the viewer applies to preview frames (0, 90, 180 or 270).
func NewHub(displayOrientation int) *Hub { return &Hub{orientation: displayOrientation} }

func (h *Hub) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy {
		return false
	}
	h.busy = true
	return true
}

func (h *Hub) attach(v *viewer) {
	h.mu.Lock()
	h.active = v
	h.mu.Unlock()
}

func (h *Hub) detach() {
	h.mu.Lock()
	h.active = nil
	h.busy = false
	h.mu.Unlock()
}

func (h *Hub) broadcast(m serverMessage) {
	h.mu.Lock()
	v := h.active
	h.mu.Unlock()
	if v != nil {
		v.send(m)
	}
}

// Present implements view.Presenter.
func (h *Hub) Present(state view.State, regions view.Regions, photo *capture.Image) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()
	h.broadcast(h.stateMessage(state, regions, photo, seq))
}

// Shutter notifies the viewer that the shutter fired.
func (h *Hub) Shutter() { h.broadcast(serverMessage{Type: msgShutter}) }

func (h *Hub) stateMessage(state view.State, regions view.Regions, photo *capture.Image, seq int64) serverMessage {
	orientation := h.orientation
	m := serverMessage{Type: msgState, View: state, Regions: &regions, Orientation: &orientation}
	if regions.Photo && photo != nil && photo.Bitmap != nil {
		m.Photo = "/photo?v=" + strconv.FormatInt(seq, 10)
	}
	return m
}

// HandleSurface handles GET /surface. The websocket connection is the
// display surface: connect creates it, resize changes it, disconnect
// destroys it.
func (h *Handlers) HandleSurface(w http.ResponseWriter, r *http.Request) {
	if !h.Hub.reserve() {
		http.Error(w, "a viewer is already connected", http.StatusConflict)
		return
	}
	defer h.Hub.detach()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		debug.Verbose("surface: websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	width, _ := strconv.Atoi(r.URL.Query().Get("w"))
	height, _ := strconv.Atoi(r.URL.Query().Get("h"))

	v := newViewer(conn)
	surf := surface.New(v.sink, width, height)
	h.Hub.attach(v)
	go v.writeLoop()
	defer close(v.done)

	ctx := r.Context()
	if err := h.call(ctx, func() error {
		h.Backend.SurfaceCreated(surf)
		st := h.Backend.Snapshot()
		v.send(h.Hub.stateMessage(st.View, st.Regions, h.Backend.Photo(), 0))
		if st.Error != "" {
			v.send(serverMessage{Type: msgError, Error: st.Error})
		}
		return nil
	}); err == nil {
		h.Broadcaster.BroadcastMsg("Viewer connected")
		h.readLoop(ctx, conn, v)
	}

	// The surface is gone: release the camera even if the request
	// context is already cancelled.
	destroyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	surf.Invalidate()
	_ = h.call(destroyCtx, func() error {
		if h.Backend.Surface() == surf {
			h.Backend.SurfaceDestroyed()
		}
		return nil
	})
	h.Broadcaster.BroadcastMsg("Viewer disconnected")
}

func (h *Handlers) readLoop(ctx context.Context, conn *websocket.Conn, v *viewer) {
	for {
		var m clientMessage
		if err := wsjson.Read(ctx, conn, &m); err != nil {
			return
		}
		var err error
		switch m.Type {
		case msgResize:
			err = h.call(ctx, func() error {
				h.Backend.SurfaceChanged(surface.FormatJPEG, m.Width, m.Height)
				return nil
			})
		case msgTouch:
			ev := gesture.Event{Action: m.Action, X: m.X, Y: m.Y, T: m.T}
			err = h.call(ctx, func() error {
				h.Backend.Touch(ev)
				return nil
			})
		case msgCapture:
			var capErr error
			err = h.call(ctx, func() error {
				capErr = h.Backend.Capture()
				return nil
			})
			if capErr != nil && !errors.Is(capErr, domain.ErrCaptureBusy) {
				v.send(serverMessage{Type: msgError, Error: capErr.Error()})
			}
		default:
			debug.Verbose("surface: unknown message type %q", m.Type)
		}
		if errors.Is(err, loop.ErrPanicked) {
			continue
		}
		if err != nil {
			return
		}
	}
}
