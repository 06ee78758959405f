package sim

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/autopeer-io/carprober/internal/core"
)

const protocolVersion = "sim-1.0"

type session struct {
	sim *Simulator

	mu        sync.Mutex
	challenge []byte
	loggedIn  bool
	closed    bool
}

var _ core.Session = (*session)(nil)

func (c *session) check() error {
	if c.closed {
		return ErrClosed
	}
	if !c.sim.online.Load() {
		return ErrOffline
	}
	return nil
}

func (c *session) SASCertificate(ctx context.Context, cert []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !bytes.Equal(cert, c.sim.expectedCert()) {
		return nil, ErrCertRejected
	}
	c.challenge = fmt.Appendf(nil, "challenge-%d", c.sim.challenges.Add(1))
	return c.challenge, nil
}

func (c *session) SASLogin(ctx context.Context, signed []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.challenge == nil {
		return ErrNotLoggedIn
	}
	want, _ := c.sim.SignChallenge(c.challenge)
	if !bytes.Equal(signed, want) {
		return ErrLoginRejected
	}
	c.loggedIn = true
	return nil
}

func (c *session) RHMIGetCapabilities(ctx context.Context, _ string, _ int) (core.Capabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.authorized(ctx); err != nil {
		return nil, err
	}
	return core.Capabilities{
		core.CapHMIType:     c.sim.hmiType,
		core.CapVehicleType: c.sim.vehicleType,
	}, nil
}

func (c *session) VerGetVersion(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.authorized(ctx); err != nil {
		return nil, err
	}
	return protocolVersion, nil
}

func (c *session) authorized(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

func (c *session) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
