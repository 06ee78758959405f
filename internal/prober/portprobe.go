package prober

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/log"
)

// PortChecker reports whether something accepts TCP connections on a loopback port.
type PortChecker interface {
	IsOpen(ctx context.Context, port int) bool
}

// PortProbe is a plain TCP reachability test. The probe connection is never
// reused; a session is dialed fresh afterwards.
type PortProbe struct {
	host    string
	timeout time.Duration
	dialer  net.Dialer
}

var _ PortChecker = (*PortProbe)(nil)

// NewPortProbe probes 127.0.0.1 with the given connect timeout.
func NewPortProbe(timeout time.Duration) *PortProbe {
	return &PortProbe{host: core.LoopbackHost, timeout: timeout}
}

// IsOpen connects to the port and closes the socket before returning.
// Timeouts, refusals and resets all yield false.
func (p *PortProbe) IsOpen(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	if err := conn.Close(); err != nil {
		log.Debug("Closing probe connection failed", "port", port, "error", err)
	}
	return true
}
