package shutdown_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/catalog-checkout/pkg/shutdown"
)

func TestDrainRunsEveryFunc(t *testing.T) {
	var order []string
	errFirst := errors.New("first failed")

	err := shutdown.Drain(time.Second,
		func(context.Context) error { order = append(order, "http"); return errFirst },
		func(context.Context) error { order = append(order, "grpc"); return nil },
	)
	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"http", "grpc"}, order)
}

func TestSignalForcesAfterDeadline(t *testing.T) {
	release := make(chan struct{})
	forced := false

	err := shutdown.Drain(10*time.Millisecond, shutdown.Signal(
		func() { <-release },
		func() { forced = true; close(release) },
	))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, forced)
}

func TestSignalReturnsWhenStopped(t *testing.T) {
	err := shutdown.Drain(time.Second, shutdown.Signal(func() {}, func() { t.Fatal("forced") }))
	assert.NoError(t, err)
}
