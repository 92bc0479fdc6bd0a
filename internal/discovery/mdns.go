// Package discovery advertises the viewer on the local network so that a
// phone or tablet can find the camera without knowing its address.
package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/grandcat/zeroconf"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

const (
	ServiceType = "_http._tcp"
	Domain      = "local."
)

// TXT builds sorted key=value TXT records.
func TXT(metadata map[string]string) []string {
	txt := make([]string, 0, len(metadata))
	for k, v := range metadata {
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}

// Advertise registers the viewer as an HTTP service and blocks until ctx
// is cancelled.
func Advertise(ctx context.Context, instance string, port int, metadata map[string]string) error {
	if port <= 0 {
		return fmt.Errorf("mdns: invalid port %d", port)
	}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, TXT(metadata), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	debug.Info("mDNS: advertising %q as %s on port %d", instance, ServiceType, port)
	<-ctx.Done()
	server.Shutdown()
	debug.Verbose("mDNS: advertisement withdrawn")
	return nil
}
