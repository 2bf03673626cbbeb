package grpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthsrv "github.com/dmehra2102/catalog-checkout/internal/inventory/infrastructure/grpc"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
)

func status(t *testing.T, s *healthsrv.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCheckFollowsPing(t *testing.T) {
	var pingErr error
	s := healthsrv.NewServer(logging.Discard(), func(context.Context) error { return pingErr })

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, healthsrv.ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ""))

	pingErr = errors.New("db down")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, healthsrv.ServiceName))
}

func TestWatchStopsOnCancel(t *testing.T) {
	s := healthsrv.NewServer(logging.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, healthsrv.ServiceName))
}
