// Package memory is an in-process storage.Gateway. Transactions see
// committed state plus their own writes, check versions on every write and
// validate them again at commit, so lost updates surface exactly as they do
// against postgres.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	order "github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
)

// ErrUnavailable is the transient failure produced by injected faults.
var ErrUnavailable = errors.New("memory store unavailable")

var errTxDone = errors.New("transaction already closed")

type Store struct {
	mu          sync.Mutex
	products    map[uuid.UUID]inventory.ProductSnapshot
	orders      map[uuid.UUID]order.OrderSnapshot
	events      []outbox.Event
	leases      map[int64]time.Time
	nextEventID int64

	commitFaults int
	beforeSave   func(id uuid.UUID)
}

func New() *Store {
	return &Store{
		products: make(map[uuid.UUID]inventory.ProductSnapshot),
		orders:   make(map[uuid.UUID]order.OrderSnapshot),
		leases:   make(map[int64]time.Time),
	}
}

var _ storage.Gateway = (*Store)(nil)

// FailCommits makes the next n commits fail with ErrUnavailable.
func (s *Store) FailCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFaults = n
}

// BeforeProductSave installs a hook run inside a transaction just before a
// product write is version-checked. Tests use it to interleave writers.
func (s *Store) BeforeProductSave(fn func(id uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSave = fn
}

// Events returns a copy of every committed outbox event.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.newTx(), nil
}

func (s *Store) Products() storage.ProductRepository {
	return autoProducts{s: s}
}

func (s *Store) Orders() storage.OrderRepository {
	return autoOrders{s: s}
}

func (s *Store) newTx() *tx {
	return &tx{
		s:        s,
		products: make(map[uuid.UUID]pendingProduct),
		orders:   make(map[uuid.UUID]pendingOrder),
	}
}

type pendingProduct struct {
	snap  inventory.ProductSnapshot
	base  int64
	isNew bool
}

type pendingOrder struct {
	snap  order.OrderSnapshot
	base  int64
	isNew bool
}

type tx struct {
	s        *Store
	products map[uuid.UUID]pendingProduct
	orders   map[uuid.UUID]pendingOrder
	events   []outbox.Event
	done     bool
}

func (t *tx) Products() storage.ProductRepository { return txProducts{t} }
func (t *tx) Orders() storage.OrderRepository     { return txOrders{t} }

func (t *tx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitFaults > 0 {
		s.commitFaults--
		return ErrUnavailable
	}

	for id, p := range t.products {
		cur, ok := s.products[id]
		if p.isNew {
			if ok {
				return storage.ErrConcurrencyConflict
			}
			continue
		}
		if !ok || cur.Version != p.base {
			return storage.ErrConcurrencyConflict
		}
	}
	for id, o := range t.orders {
		cur, ok := s.orders[id]
		if o.isNew {
			if ok {
				return storage.ErrConcurrencyConflict
			}
			continue
		}
		if !ok || cur.Version != o.base {
			return storage.ErrConcurrencyConflict
		}
	}

	for id, p := range t.products {
		s.products[id] = p.snap
	}
	for id, o := range t.orders {
		s.orders[id] = copyOrder(o.snap)
	}
	for _, ev := range t.events {
		s.nextEventID++
		ev.ID = s.nextEventID
		if ev.Status == "" {
			ev.Status = outbox.StatusPending
		}
		s.events = append(s.events, ev)
	}
	return nil
}

func (t *tx) check() error {
	if t.done {
		return errTxDone
	}
	return nil
}

// visibleProduct returns what the transaction sees for id.
func (t *tx) visibleProduct(id uuid.UUID) (inventory.ProductSnapshot, bool) {
	if p, ok := t.products[id]; ok {
		return p.snap, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[id]
	return p, ok
}

func (t *tx) visibleOrder(id uuid.UUID) (order.OrderSnapshot, bool) {
	if o, ok := t.orders[id]; ok {
		return copyOrder(o.snap), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	return copyOrder(o), ok
}

type txProducts struct{ t *tx }

func (r txProducts) Get(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	if err := r.t.check(); err != nil {
		return nil, err
	}
	snap, ok := r.t.visibleProduct(id)
	if !ok || snap.Deleted {
		return nil, storage.ErrNotFound
	}
	return inventory.HydrateProduct(snap), nil
}

func (r txProducts) GetMany(ctx context.Context, ids []uuid.UUID) ([]*inventory.Product, error) {
	if err := r.t.check(); err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]*inventory.Product, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if snap, ok := r.t.visibleProduct(id); ok && !snap.Deleted {
			out = append(out, inventory.HydrateProduct(snap))
		}
	}
	return out, nil
}

func (r txProducts) List(ctx context.Context, page storage.PageRequest, includeInactive bool) ([]*inventory.Product, int, error) {
	if err := r.t.check(); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()

	r.t.s.mu.Lock()
	all := make(map[uuid.UUID]inventory.ProductSnapshot, len(r.t.s.products))
	for id, p := range r.t.s.products {
		all[id] = p
	}
	r.t.s.mu.Unlock()
	for id, p := range r.t.products {
		all[id] = p.snap
	}

	matched := make([]inventory.ProductSnapshot, 0, len(all))
	for _, p := range all {
		if p.Deleted || (!includeInactive && !p.Active) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name == matched[j].Name {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].Name < matched[j].Name
	})

	out := make([]*inventory.Product, 0, page.PageSize)
	for _, p := range window(matched, page) {
		out = append(out, inventory.HydrateProduct(p))
	}
	return out, len(matched), nil
}

func (r txProducts) Add(ctx context.Context, p *inventory.Product) error {
	if err := r.t.check(); err != nil {
		return err
	}
	if _, ok := r.t.visibleProduct(p.ID()); ok {
		return storage.ErrConcurrencyConflict
	}
	snap := p.Snapshot()
	snap.Version = 1
	r.t.products[p.ID()] = pendingProduct{snap: snap, isNew: true}
	*p = *inventory.HydrateProduct(snap)
	return nil
}

func (r txProducts) Save(ctx context.Context, p *inventory.Product) error {
	if err := r.t.check(); err != nil {
		return err
	}
	r.t.s.mu.Lock()
	hook := r.t.s.beforeSave
	r.t.s.mu.Unlock()
	if hook != nil {
		hook(p.ID())
	}

	cur, ok := r.t.visibleProduct(p.ID())
	if !ok || cur.Deleted {
		return storage.ErrConcurrencyConflict
	}
	if cur.Version != p.Version() {
		return storage.ErrConcurrencyConflict
	}

	pending, buffered := r.t.products[p.ID()]
	snap := p.Snapshot()
	snap.Version = cur.Version + 1
	if buffered {
		pending.snap = snap
	} else {
		pending = pendingProduct{snap: snap, base: cur.Version}
	}
	r.t.products[p.ID()] = pending
	*p = *inventory.HydrateProduct(snap)
	return nil
}

func (r txProducts) Remove(ctx context.Context, p *inventory.Product) error {
	p.MarkDeleted()
	return r.Save(ctx, p)
}

type txOrders struct{ t *tx }

func (r txOrders) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if err := r.t.check(); err != nil {
		return nil, err
	}
	snap, ok := r.t.visibleOrder(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return order.HydrateOrder(snap), nil
}

func (r txOrders) List(ctx context.Context, page storage.PageRequest, filter storage.OrderFilter) ([]*order.Order, int, error) {
	if err := r.t.check(); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	email := order.NormalizeEmail(filter.CustomerEmail)

	r.t.s.mu.Lock()
	all := make(map[uuid.UUID]order.OrderSnapshot, len(r.t.s.orders))
	for id, o := range r.t.s.orders {
		all[id] = o
	}
	r.t.s.mu.Unlock()
	for id, o := range r.t.orders {
		all[id] = o.snap
	}

	matched := make([]order.OrderSnapshot, 0, len(all))
	for _, o := range all {
		if email != "" && !strings.EqualFold(o.CustomerEmail, email) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Number > matched[j].Number
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := make([]*order.Order, 0, page.PageSize)
	for _, o := range window(matched, page) {
		out = append(out, order.HydrateOrder(copyOrder(o)))
	}
	return out, len(matched), nil
}

func (r txOrders) Add(ctx context.Context, o *order.Order, events ...outbox.Event) error {
	if err := r.t.check(); err != nil {
		return err
	}
	if _, ok := r.t.visibleOrder(o.ID()); ok {
		return storage.ErrConcurrencyConflict
	}
	snap := o.Snapshot()
	snap.Version = 1
	r.t.orders[o.ID()] = pendingOrder{snap: snap, isNew: true}
	r.t.events = append(r.t.events, events...)
	*o = *order.HydrateOrder(copyOrder(snap))
	return nil
}

func (r txOrders) Save(ctx context.Context, o *order.Order, events ...outbox.Event) error {
	if err := r.t.check(); err != nil {
		return err
	}
	cur, ok := r.t.visibleOrder(o.ID())
	if !ok || cur.Version != o.Version() {
		return storage.ErrConcurrencyConflict
	}
	pending, buffered := r.t.orders[o.ID()]
	snap := o.Snapshot()
	snap.Version = cur.Version + 1
	if buffered {
		pending.snap = snap
	} else {
		pending = pendingOrder{snap: snap, base: cur.Version}
	}
	r.t.orders[o.ID()] = pending
	r.t.events = append(r.t.events, events...)
	*o = *order.HydrateOrder(copyOrder(snap))
	return nil
}

// autoProducts and autoOrders run every write in its own transaction.

type autoProducts struct{ s *Store }

func (r autoProducts) read() storage.ProductRepository { return txProducts{r.s.newTx()} }

func (r autoProducts) Get(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	return r.read().Get(ctx, id)
}

func (r autoProducts) GetMany(ctx context.Context, ids []uuid.UUID) ([]*inventory.Product, error) {
	return r.read().GetMany(ctx, ids)
}

func (r autoProducts) List(ctx context.Context, page storage.PageRequest, includeInactive bool) ([]*inventory.Product, int, error) {
	return r.read().List(ctx, page, includeInactive)
}

func (r autoProducts) Add(ctx context.Context, p *inventory.Product) error {
	return r.s.autocommit(ctx, func(t *tx) error { return txProducts{t}.Add(ctx, p) })
}

func (r autoProducts) Save(ctx context.Context, p *inventory.Product) error {
	return r.s.autocommit(ctx, func(t *tx) error { return txProducts{t}.Save(ctx, p) })
}

func (r autoProducts) Remove(ctx context.Context, p *inventory.Product) error {
	return r.s.autocommit(ctx, func(t *tx) error { return txProducts{t}.Remove(ctx, p) })
}

type autoOrders struct{ s *Store }

func (r autoOrders) read() storage.OrderRepository { return txOrders{r.s.newTx()} }

func (r autoOrders) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.read().Get(ctx, id)
}

func (r autoOrders) List(ctx context.Context, page storage.PageRequest, filter storage.OrderFilter) ([]*order.Order, int, error) {
	return r.read().List(ctx, page, filter)
}

func (r autoOrders) Add(ctx context.Context, o *order.Order, events ...outbox.Event) error {
	return r.s.autocommit(ctx, func(t *tx) error { return txOrders{t}.Add(ctx, o, events...) })
}

func (r autoOrders) Save(ctx context.Context, o *order.Order, events ...outbox.Event) error {
	return r.s.autocommit(ctx, func(t *tx) error { return txOrders{t}.Save(ctx, o, events...) })
}

func (s *Store) autocommit(ctx context.Context, fn func(t *tx) error) error {
	t := s.newTx()
	defer func() { _ = t.Rollback(ctx) }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit(ctx)
}

func window[T any](items []T, page storage.PageRequest) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := min(start+page.PageSize, len(items))
	return items[start:end]
}

func copyOrder(o order.OrderSnapshot) order.OrderSnapshot {
	o.Items = slices.Clone(o.Items)
	if o.ProcessedAt != nil {
		t := *o.ProcessedAt
		o.ProcessedAt = &t
	}
	return o
}

// outbox.Store, so the relay can drain committed events.

// LockBatch claims pending events plus in-progress ones whose lease ran out.
func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []outbox.Event
	for i := range s.events {
		if len(out) == batchSize {
			break
		}
		ev := &s.events[i]
		switch ev.Status {
		case outbox.StatusPending:
		case outbox.StatusInProgress:
			if now.Before(s.leases[ev.ID]) {
				continue
			}
		default:
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		s.leases[ev.ID] = now.Add(lease)
		out = append(out, *ev)
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	return s.setStatus(ids, outbox.StatusSent, "")
}

func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return s.setStatus([]int64{id}, outbox.StatusFailed, errMsg)
}

// ExtendLease pushes the lease out for events relayID still holds.
func (s *Store) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := time.Now().Add(lease)
	for _, ev := range s.events {
		if ev.Status == outbox.StatusInProgress && ev.RelayID == relayID && slices.Contains(ids, ev.ID) {
			s.leases[ev.ID] = until
		}
	}
	return nil
}

func (s *Store) setStatus(ids []int64, status outbox.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if !slices.Contains(ids, s.events[i].ID) {
			continue
		}
		delete(s.leases, s.events[i].ID)
		s.events[i].Status = status
		if errMsg != "" {
			msg := errMsg
			s.events[i].LastError = &msg
			s.events[i].RetryCount++
		}
	}
	return nil
}
