// Package health exposes controller liveness over the standard gRPC health
// protocol and probes it for diagnostics.
package health

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reported for the controller.
const ServiceName = "murmur.controller"

const stopTimeout = time.Second

// Server serves grpc.health.v1.Health on one listener.
type Server struct {
	logger *slog.Logger
	grpc   *grpc.Server
	status *health.Server
	lis    net.Listener
	done   chan error
}

// Listen binds addr and starts serving. The controller starts NOT_SERVING
// until SetServing(true).
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen health %q: %w", addr, err)
	}

	s := &Server{
		logger: logger,
		grpc:   grpc.NewServer(),
		status: health.NewServer(),
		lis:    lis,
		done:   make(chan error, 1),
	}
	s.status.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.status)

	go func() {
		err := s.grpc.Serve(lis)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		s.done <- err
	}()
	logger.Info("health endpoint listening", "addr", lis.Addr().String())
	return s, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// SetServing flips the controller service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.status.SetServingStatus(ServiceName, status)
}

// Close marks every service NOT_SERVING and stops the server, forcing it
// after a short bound.
func (s *Server) Close() error {
	s.status.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		s.logger.Debug("health graceful stop timed out; forcing")
		s.grpc.Stop()
	}
	return <-s.done
}
