package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last transient failure once the policy gives up.
var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

type Option func(*Strategy)

// WithNotify registers a callback invoked before every retry.
func WithNotify(fn func(attempt int, err error)) Option {
	return func(s *Strategy) { s.notify = fn }
}

// Strategy is the transaction-level tier: it re-runs a whole unit of work
// while it fails with transient errors. Everything else is returned on the
// first attempt.
type Strategy struct {
	policy      Policy
	isTransient func(error) bool
	log         *slog.Logger
	notify      func(attempt int, err error)
}

func NewStrategy(policy Policy, isTransient func(error) bool, log *slog.Logger, opts ...Option) *Strategy {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	s := &Strategy{policy: policy, isTransient: isTransient, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strategy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.policy.InitialInterval
	eb.MaxInterval = s.policy.MaxInterval
	eb.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.policy.MaxAttempts-1)), ctx)

	attempt := 0
	transient := false
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		transient = s.isTransient(err)
		if !transient {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		s.log.Warn("transient failure, retrying unit of work", "attempt", attempt, "wait", wait, "err", err)
		if s.notify != nil {
			s.notify(attempt, err)
		}
	})
	if err != nil && transient {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
	return err
}
