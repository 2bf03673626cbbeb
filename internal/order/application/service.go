// Package application holds the reservation coordinator: every order
// workflow that has to move stock and order state together.
package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/metrics"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
)

const (
	aggregateOrder   = "order"
	aggregateProduct = "product"
)

type Coordinator struct {
	log      *slog.Logger
	gw       storage.Gateway
	strategy *retry.Strategy
	metrics  *metrics.Metrics
}

// NewCoordinator wires the coordinator. m may be nil.
func NewCoordinator(log *slog.Logger, gw storage.Gateway, strategy *retry.Strategy, m *metrics.Metrics) *Coordinator {
	return &Coordinator{log: log, gw: gw, strategy: strategy, metrics: m}
}

// inTx runs fn inside one store transaction and commits it. The whole unit,
// reads included, is re-run by the strategy on transient failures, so fn must
// not carry state across attempts except through what it returns on success.
func (c *Coordinator) inTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return c.strategy.Execute(ctx, func(ctx context.Context) error {
		tx, err := c.gw.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// mutateProduct applies change to p and saves it under p's version. A version
// conflict reloads p and applies change exactly once more.
func (c *Coordinator) mutateProduct(ctx context.Context, products storage.ProductRepository, p *inventory.Product, change func(*inventory.Product) error) error {
	return retry.OnConflict(ctx, isConflict,
		func(ctx context.Context) error {
			if err := change(p); err != nil {
				return err
			}
			return products.Save(ctx, p)
		},
		func(ctx context.Context) error {
			c.metrics.Retry("entity")
			fresh, err := products.Get(ctx, p.ID())
			if err != nil {
				return err
			}
			c.log.Debug("product reloaded after version conflict", "product_id", p.ID(), "version", fresh.Version())
			*p = *fresh
			return nil
		})
}

func (c *Coordinator) reserve(ctx context.Context, products storage.ProductRepository, p *inventory.Product, orderID uuid.UUID, quantity int) (outbox.Event, error) {
	// A reload after a conflict may observe a product deactivated by the
	// competing write, so orderability is checked on every attempt.
	err := c.mutateProduct(ctx, products, p, func(p *inventory.Product) error {
		if err := p.EnsureOrderable(); err != nil {
			return err
		}
		return p.Reserve(quantity)
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.NewEvent(ctx, aggregateProduct, p.ID().String(), inventory.EventStockReserved, inventory.StockReserved{
		ProductID: p.ID(),
		OrderID:   orderID,
		Quantity:  quantity,
		Remaining: p.StockQuantity(),
	})
}

func (c *Coordinator) restore(ctx context.Context, products storage.ProductRepository, p *inventory.Product, orderID uuid.UUID, quantity int) (outbox.Event, error) {
	if err := c.mutateProduct(ctx, products, p, func(p *inventory.Product) error { return p.Restore(quantity) }); err != nil {
		return outbox.Event{}, err
	}
	return outbox.NewEvent(ctx, aggregateProduct, p.ID().String(), inventory.EventStockReleased, inventory.StockReleased{
		ProductID: p.ID(),
		OrderID:   orderID,
		Quantity:  quantity,
		Remaining: p.StockQuantity(),
	})
}

func loadOrder(ctx context.Context, orders storage.OrderRepository, id uuid.UUID) (*domain.Order, error) {
	o, err := orders.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Entity: "Order", ID: id}
	}
	return o, err
}

func loadProduct(ctx context.Context, products storage.ProductRepository, id uuid.UUID) (*inventory.Product, error) {
	p, err := products.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Entity: "Product", ID: id}
	}
	return p, err
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrConcurrencyConflict)
}
