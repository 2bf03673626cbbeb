package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check name reported for the checkout service.
const ServiceName = "catalog.checkout.v1.Checkout"

// Server publishes the standard gRPC health service, driven by a store ping.
type Server struct {
	log      *slog.Logger
	health   *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
}

func NewServer(log *slog.Logger, ping func(ctx context.Context) error) *Server {
	return &Server{
		log:      log,
		health:   health.NewServer(),
		ping:     ping,
		interval: 5 * time.Second,
	}
}

// Check runs one ping and updates the served status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("store ping failed", "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-checks health until ctx is done, then reports NOT_SERVING.
func (s *Server) Watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) Health() healthpb.HealthServer { return s.health }

func Run(addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, srv.health)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc serve stopped", "err", err)
		}
	}()
	return gs, nil
}
