// Package prober finds the head-unit proxy on loopback, logs in to it and
// keeps the connection alive.
//
// All work runs on the goroutine that calls Run. A single timer slot decides
// what happens next: a search pass over the candidate ports while
// disconnected, a keepalive ping while connected.
package prober

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/internal/latency"
	"github.com/autopeer-io/carprober/internal/metrics"
	fsmutil "github.com/autopeer-io/carprober/internal/pkg/util/fsm"
	"github.com/autopeer-io/carprober/internal/registry"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/options"
)

// Prober owns the head-unit session and is the only writer of the registry.
type Prober struct {
	opts     options.ProberOptions
	ports    PortChecker
	detector BrandDetector
	registry *registry.Registry
	sampler  *latency.Sampler
	fsm      *FiniteStateMachine
	sched    *scheduler

	session core.Session
}

// Option customizes a Prober.
type Option func(*Prober)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Prober) { p.sched = newScheduler(c) }
}

// New builds a Prober. opts is copied, later changes to it have no effect.
func New(opts *options.ProberOptions, ports PortChecker, detector BrandDetector, reg *registry.Registry, sampler *latency.Sampler, opt ...Option) *Prober {
	p := &Prober{
		opts:     *opts,
		ports:    ports,
		detector: detector,
		registry: reg,
		sampler:  sampler,
		fsm:      NewFiniteStateMachine(reg),
		sched:    newScheduler(clock.RealClock{}),
	}
	p.opts.CandidatePorts = append([]int(nil), opts.CandidatePorts...)

	for _, o := range opt {
		o(p)
	}
	return p
}

// Run drives the prober until ctx is cancelled. On return the session is
// closed, the registry is reset and no timer is pending.
func (p *Prober) Run(ctx context.Context) error {
	log.Info("Starting car prober", "ports", p.opts.CandidatePorts)

	defer p.shutdown(context.WithoutCancel(ctx))
	p.schedule(p.opts.TickSearchStartup)

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping car prober")
			return nil
		case <-p.sched.C():
			p.tick(ctx)
		}
	}
}

// State returns the current lifecycle state.
func (p *Prober) State() string {
	return p.fsm.Current()
}

func (p *Prober) tick(ctx context.Context) {
	switch p.sched.fire() {
	case taskKeepalive:
		p.keepaliveTick(ctx)
	default:
		p.searchTick(ctx)
	}
}

// schedule arms the single timer slot with whichever task the current
// connection state calls for.
func (p *Prober) schedule(d time.Duration) {
	if p.registry.IsConnected() && p.session != nil {
		p.sched.arm(taskKeepalive, d)
		return
	}
	p.sched.arm(taskSearch, d)
}

func (p *Prober) searchTick(ctx context.Context) {
	if p.session != nil {
		// The registry was reset by someone else. Drop the stale session so
		// a new detection never holds two.
		log.Warn("Registry reset while a session was held, dropping it")
		p.disconnect(ctx)
	}

	for _, port := range p.opts.CandidatePorts {
		out := p.probePort(ctx, port)
		metrics.ProbeTotal.WithLabelValues(out.Kind.String()).Inc()

		switch out.Kind {
		case OutcomeNotReady:
			log.Info("Security service not ready, retrying later", "port", port)
			p.schedule(p.opts.TickSearchNotReady)
			return
		case OutcomeConnected:
			p.connect(ctx, out)
			p.schedule(p.opts.TickSearchAfterDetect)
		}

		if p.session != nil {
			break
		}
	}

	// Overrides the post-detection arming with the right task for the
	// state this pass ended in.
	if p.registry.IsConnected() {
		p.schedule(p.opts.TickKeepalive)
		return
	}
	p.schedule(p.opts.TickSearch)
}

func (p *Prober) probePort(ctx context.Context, port int) Outcome {
	if !p.ports.IsOpen(ctx, port) {
		log.Debug("Port closed", "port", port)
		return Outcome{Kind: OutcomePortClosed, Port: port}
	}
	log.Info("Found open socket, detecting car brand", "port", port)
	return p.detector.Detect(ctx, port)
}

func (p *Prober) connect(ctx context.Context, out Outcome) {
	p.session = out.Session
	if err := p.fsm.Event(ctx, EventDetected, connection{brand: out.Brand, port: out.Port}); fsmutil.IsRealError(err) {
		log.Error(err, "Failed to record detected head unit", "brand", out.Brand, "port", out.Port)
		p.closeSession()
		p.registry.Reset()
		return
	}
	log.Info("Connected to head unit", "brand", out.Brand, "port", out.Port)
}

func (p *Prober) keepaliveTick(ctx context.Context) {
	if err := p.ping(ctx); err != nil {
		log.Warn("Previously-connected car has disconnected", "error", err)
		metrics.KeepaliveFailures.Inc()
		p.disconnect(ctx)
		p.schedule(p.opts.TickReconnect)
		return
	}
	p.schedule(p.opts.TickKeepalive)
}

func (p *Prober) ping(ctx context.Context) error {
	if p.session == nil {
		return ErrIllegalState
	}
	_, err := latency.Time(p.sampler, func() (any, error) {
		return p.session.VerGetVersion(ctx)
	})
	return err
}

// disconnect resets the registry before closing the session.
func (p *Prober) disconnect(ctx context.Context) {
	if p.fsm.Is(StateConnected) {
		if err := p.fsm.Event(ctx, EventLost); fsmutil.IsRealError(err) {
			log.Error(err, "Failed to leave connected state")
		}
	}
	p.registry.Reset()
	p.closeSession()
}

func (p *Prober) closeSession() {
	if p.session == nil {
		return
	}
	if err := p.session.Close(); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("Closing head-unit session failed", "error", err)
	}
	p.session = nil
}

func (p *Prober) shutdown(ctx context.Context) {
	p.sched.cancel()
	if p.session != nil || p.registry.IsConnected() {
		p.disconnect(ctx)
	}
}
