// Package shutdown turns SIGINT/SIGTERM into context cancellation and drains
// the process's servers once that happens.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"
)

// Func stops one component, giving up when ctx expires.
type Func func(ctx context.Context) error

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, stop
}

// Drain runs fns in order under a single deadline and joins their errors.
// Every func runs even if an earlier one failed.
func Drain(timeout time.Duration, fns ...Func) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Signal adapts a stop method that takes no context. If ctx expires first,
// force is called and the context error returned.
func Signal(stop, force func()) Func {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			stop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			if force != nil {
				force()
			}
			return ctx.Err()
		}
	}
}
