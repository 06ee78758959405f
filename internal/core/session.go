package core

import (
	"context"
)

// Capability keys read from rhmi_getCapabilities.
const (
	CapVehicleType = "vehicle.type"
	CapHMIType     = "hmi.type"
)

// Capabilities is the metadata map a head unit reports after login.
type Capabilities map[string]any

// String returns the value under key if it is a string, "" otherwise.
func (c Capabilities) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Session is an RPC channel to a head-unit proxy. Implementations carry their
// own call timeouts; ctx only adds an upper bound.
//
// A Session is owned by exactly one component at a time and is not safe for
// concurrent use.
type Session interface {
	// SASCertificate presents the merged brand certificate and returns the login challenge.
	SASCertificate(ctx context.Context, cert []byte) ([]byte, error)

	// SASLogin answers the challenge with the signed response.
	SASLogin(ctx context.Context, signed []byte) error

	// RHMIGetCapabilities queries head-unit metadata.
	RHMIGetCapabilities(ctx context.Context, token string, id int) (Capabilities, error)

	// VerGetVersion is the cheapest call available and serves as the keepalive ping.
	VerGetVersion(ctx context.Context) (any, error)

	// Close releases the transport. It must be safe to call more than once.
	Close() error
}

// Dialer opens fresh sessions.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host string, port int) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, host string, port int) (Session, error) {
	return f(ctx, host, port)
}
