// Package server runs the status surfaces of the car prober.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/carprober/pkg/log"
)

// Server is a protocol server that runs until ctx is done.
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager skips nil servers so disabled surfaces can be passed as-is.
func NewManager(servers ...Server) *Manager {
	m := &Manager{}
	for _, s := range servers {
		if s != nil {
			m.servers = append(m.servers, s)
		}
	}
	return m
}

// Len returns the number of managed servers.
func (m *Manager) Len() int { return len(m.servers) }

// Start launches all servers in parallel and waits for termination. The
// first failure stops the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
