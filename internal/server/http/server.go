package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/options"
)

const shutdownTimeout = 5 * time.Second

// StateSource is read on every status request.
type StateSource interface {
	Snapshot() core.ConnectionState
}

// LatencySource reports the running RPC latency.
type LatencySource interface {
	Average() time.Duration
	Samples() int64
}

// ConnectionStatus is the body of GET /api/v1/connection.
type ConnectionStatus struct {
	core.ConnectionState
	LatencyAverageMs float64 `json:"latencyAverageMs"`
	Samples          int64   `json:"samples"`
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer routes the health probes, /metrics from gatherer and the
// connection status API.
func NewServer(opts *options.HttpOptions, state StateSource, latency LatencySource, gatherer prometheus.Gatherer) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Ready only while a head unit is connected.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !state.Snapshot().Connected {
			http.Error(w, "head unit not connected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/connection", func(w http.ResponseWriter, _ *http.Request) {
		body := ConnectionStatus{
			ConnectionState:  state.Snapshot(),
			LatencyAverageMs: float64(latency.Average()) / float64(time.Millisecond),
			Samples:          latency.Samples(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Warn("Failed to write connection status", "error", err)
		}
	}).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
