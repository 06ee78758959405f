// Package agent assembles the car prober daemon.
package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/carprober/internal/headunit/sim"
	"github.com/autopeer-io/carprober/internal/latency"
	"github.com/autopeer-io/carprober/internal/notifier"
	"github.com/autopeer-io/carprober/internal/prober"
	"github.com/autopeer-io/carprober/internal/registry"
	"github.com/autopeer-io/carprober/internal/server"
	"github.com/autopeer-io/carprober/pkg/log"
)

type Agent struct {
	registry *registry.Registry
	sampler  *latency.Sampler
	prober   *prober.Prober
	sim      *sim.Simulator
	notifier *notifier.MQTTNotifier
	servers  *server.Manager

	unsubscribe []func()
}

func (a *Agent) listen(l registry.Listener) {
	a.unsubscribe = append(a.unsubscribe, a.registry.Subscribe(l))
}

// Registry returns the registry the agent publishes to.
func (a *Agent) Registry() *registry.Registry { return a.registry }

// Sampler returns the RPC latency sampler.
func (a *Agent) Sampler() *latency.Sampler { return a.sampler }

// Run starts every component and blocks until ctx is done or one of them
// fails. The head-unit session is closed and the registry reset on return.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting cpeer-car-prober")
	defer func() {
		for _, unsubscribe := range a.unsubscribe {
			unsubscribe()
		}
		log.Info("Agent shutting down...")
	}()

	g, ctx := errgroup.WithContext(ctx)

	if a.sim != nil {
		if err := a.sim.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return a.sim.Serve(ctx) })
	}
	// The notifier outlives the prober so the connection_reset published by
	// the prober's teardown still reaches the broker.
	notifyCtx, stopNotifier := context.WithCancel(context.WithoutCancel(ctx))
	defer stopNotifier()
	if a.notifier != nil {
		g.Go(func() error { return a.notifier.Run(notifyCtx) })
	}
	if a.servers.Len() > 0 {
		g.Go(func() error { return a.servers.Start(ctx) })
	}
	g.Go(func() error {
		defer stopNotifier()
		return a.prober.Run(ctx)
	})

	return g.Wait()
}
