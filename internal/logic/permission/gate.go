// Package permission tracks the two device capabilities the camera needs
// (camera access, storage write access) and requests the missing ones in
// a single batch.
package permission

import (
	"fmt"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
)

// Capability is a device capability guarded by the OS.
type Capability string

const (
	Camera  Capability = "camera"
	Storage Capability = "storage"
)

// All lists the capabilities in request order.
var All = []Capability{Camera, Storage}

// Status is the grant state of one capability.
type Status int

const (
	Unknown Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Grant is one entry of a request result.
type Grant struct {
	Capability Capability
	Granted    bool
}

// Set is the current grant state of both capabilities.
type Set struct {
	Camera  Status
	Storage Status
}

// Get returns the status of c.
func (s Set) Get(c Capability) Status {
	switch c {
	case Camera:
		return s.Camera
	case Storage:
		return s.Storage
	}
	return Unknown
}

func (s *Set) set(c Capability, st Status) {
	switch c {
	case Camera:
		s.Camera = st
	case Storage:
		s.Storage = st
	}
}

// Provider is the OS side of the contract: a synchronous self-check and
// an asynchronous batched request whose result is delivered exactly once.
type Provider interface {
	Check(c Capability) Status
	Request(caps []Capability, deliver func([]Grant))
}

// Gate owns the permission set. Not safe for concurrent use: call it
// from the event loop only.
type Gate struct {
	provider Provider
	set      Set
	pending  bool

	// OnChange, when set, runs after every OnResult.
	OnChange func(Set)
}

// NewGate creates a gate with every capability Unknown.
func NewGate(p Provider) *Gate {
	return &Gate{provider: p}
}

// CheckAndRequest resolves capabilities already granted by the OS and
// issues one combined request for the rest. Nothing is requested while a
// previous request is outstanding or when everything is resolved.
func (g *Gate) CheckAndRequest() {
	if g.pending {
		debug.Verbose("Permission request already outstanding")
		return
	}
	var batch []Capability
	for _, c := range All {
		if g.set.Get(c) != Unknown {
			continue
		}
		if g.provider.Check(c) == Granted {
			debug.Live("Permission %s already granted", c)
			g.set.set(c, Granted)
			continue
		}
		debug.Live("Permission %s missing, requesting", c)
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		return
	}
	g.pending = true
	debug.Info("Requesting permissions: %v", batch)
	g.provider.Request(batch, g.OnResult)
}

// OnResult applies a request result entry by entry. A denial is terminal:
// nothing is retried until the user re-grants outside the application.
func (g *Gate) OnResult(grants []Grant) {
	g.pending = false
	for _, gr := range grants {
		st := Denied
		if gr.Granted {
			st = Granted
		}
		g.set.set(gr.Capability, st)
		debug.Info("Permission %s %s", gr.Capability, st)
	}
	if g.OnChange != nil {
		g.OnChange(g.set)
	}
}

// Authorize returns nil when c is granted and ErrPermissionDenied otherwise.
func (g *Gate) Authorize(c Capability) error {
	if st := g.set.Get(c); st != Granted {
		return domain.NewError("permission.Authorize", domain.ErrPermissionDenied, fmt.Sprintf("%s is %s", c, st))
	}
	return nil
}

// Set returns a copy of the current permission set.
func (g *Gate) Set() Set { return g.set }

// Pending reports whether a request is waiting for its result.
func (g *Gate) Pending() bool { return g.pending }
