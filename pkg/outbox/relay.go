package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLease sets how long a locked batch stays reserved for this relay.
// Drain renews the lease on undispatched events once half of it has passed.
func WithLease(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.lease = d
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...RelayOption) *Relay {
	r := &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Drain(ctx); err != nil {
				r.log.Error("relay drain error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Drain publishes one locked batch and reports how many events were sent.
// Events that fail are marked failed individually and left for inspection.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	leased := time.Now()
	ids := make([]int64, 0, len(events))
	for i, e := range events {
		if time.Since(leased) >= r.lease/2 {
			r.extend(ctx, events[i:])
			leased = time.Now()
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			r.log.Error("outbox dispatch failed", "event_id", e.ID, "type", e.Type, "err", err)
			_ = r.store.MarkFailed(ctx, e.ID, err.Error())
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.store.MarkSent(ctx, ids); err != nil {
		return 0, err
	}
	r.log.Info("outbox relayed", "relay_id", r.relayID, "sent", len(ids), "failed", len(events)-len(ids))
	return len(ids), nil
}

// extend renews the lease on events not yet dispatched so a slow batch is
// not reclaimed by another relay. A failed renewal only risks a duplicate send.
func (r *Relay) extend(ctx context.Context, rest []Event) {
	ids := make([]int64, 0, len(rest))
	for _, e := range rest {
		ids = append(ids, e.ID)
	}
	if err := r.store.ExtendLease(ctx, r.relayID, ids, r.lease); err != nil {
		r.log.Warn("outbox lease extension failed", "relay_id", r.relayID, "events", len(ids), "err", err)
	}
}
