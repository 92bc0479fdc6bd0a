package permission

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/loop"
)

// OSProvider maps the capabilities onto file access rights of the
// running process: the camera is the video device node, storage is the
// photo directory. Request results are delivered through the event loop.
type OSProvider struct {
	DevicePath string
	SaveDir    string
	Dispatcher loop.Dispatcher
}

// Check reports Granted when the process already has the access right.
// A missing right is Unknown until requested.
func (p *OSProvider) Check(c Capability) Status {
	if p.accessible(c) == nil {
		return Granted
	}
	return Unknown
}

// Request tries to obtain each capability (creating the photo directory
// if needed) and delivers the batched result asynchronously.
func (p *OSProvider) Request(caps []Capability, deliver func([]Grant)) {
	requested := append([]Capability(nil), caps...)
	go func() {
		grants := make([]Grant, 0, len(requested))
		for _, c := range requested {
			err := p.acquire(c)
			if err != nil {
				debug.Verbose("Permission %s refused: %v", c, err)
			}
			grants = append(grants, Grant{Capability: c, Granted: err == nil})
		}
		p.Dispatcher.Post(func() { deliver(grants) })
	}()
}

func (p *OSProvider) acquire(c Capability) error {
	if c == Storage {
		if err := os.MkdirAll(p.SaveDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", p.SaveDir, err)
		}
	}
	return p.accessible(c)
}

func (p *OSProvider) accessible(c Capability) error {
	switch c {
	case Camera:
		if p.DevicePath == "" {
			return nil // simulated camera, no device node
		}
		if err := unix.Access(p.DevicePath, unix.R_OK|unix.W_OK); err != nil {
			return fmt.Errorf("access %s: %w", p.DevicePath, err)
		}
	case Storage:
		if err := unix.Access(p.SaveDir, unix.W_OK|unix.X_OK); err != nil {
			return fmt.Errorf("access %s: %w", p.SaveDir, err)
		}
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
	return nil
}
