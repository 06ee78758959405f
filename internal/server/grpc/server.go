package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/autopeer-io/carprober/internal/core"
	middleware "github.com/autopeer-io/carprober/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/options"
)

// HeadUnitService is the health service name that is SERVING only while a
// head unit is connected. The empty service name reports process liveness.
const HeadUnitService = "carprober.HeadUnit"

type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
}

func NewServer(opts *options.GrpcOptions) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryLoggingInterceptor,
		middleware.UnaryTimeoutInterceptor(middleware.DefaultRPCTimeout),
	))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HeadUnitService, healthpb.HealthCheckResponse_NOT_SERVING)

	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s) // Enable grpc_cli support

	return &Server{server: s, health: hs, options: opts}
}

// OnConnection is a registry listener.
func (s *Server) OnConnection(state core.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state.Connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HeadUnitService, status)
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting gRPC Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.stop()
		return nil
	}
}

// stop drains in-flight RPCs for at most the configured timeout.
func (s *Server) stop() {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.options.Timeout):
		log.Warn("gRPC graceful stop timed out, forcing")
		s.server.Stop()
	}
}
