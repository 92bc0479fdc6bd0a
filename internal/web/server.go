package web

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, backend Backend, loop Caller, hub *Hub) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, backend, loop, hub, subFS),
	}, nil
}

// Handlers returns the server handlers.
func (s *Server) Handlers() *Handlers { return s.handlers }

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /state", s.handlers.HandleState)
	mux.HandleFunc("POST /capture", s.handlers.HandleCapture)
	mux.HandleFunc("GET /photo", s.handlers.HandlePhoto)
	mux.HandleFunc("GET /surface", s.handlers.HandleSurface)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// ready, when non-nil, receives the bound port once listening.
func (s *Server) Run(ctx context.Context, ready func(port int)) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web viewer listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready(ln.Addr().(*net.TCPAddr).Port)
	}

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
