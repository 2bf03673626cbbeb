// Package storage defines the persistence gateway the order and inventory
// services drive. Implementations live in the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	order "github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict means the entity's version changed after it was read.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

type PageRequest struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize clamps the request to page >= 1 and 1 <= size <= MaxPageSize.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type OrderFilter struct {
	CustomerEmail string
	Status        order.Status
}

type ProductRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*inventory.Product, error)
	// GetMany returns the products found; missing ids are simply absent.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*inventory.Product, error)
	List(ctx context.Context, page PageRequest, includeInactive bool) ([]*inventory.Product, int, error)
	Add(ctx context.Context, p *inventory.Product) error
	// Save writes p if its version still matches the stored one and advances
	// p's version. A mismatch returns ErrConcurrencyConflict.
	Save(ctx context.Context, p *inventory.Product) error
	Remove(ctx context.Context, p *inventory.Product) error
}

type OrderRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	List(ctx context.Context, page PageRequest, filter OrderFilter) ([]*order.Order, int, error)
	// Add and Save persist the order and its outbox events as one unit.
	Add(ctx context.Context, o *order.Order, events ...outbox.Event) error
	Save(ctx context.Context, o *order.Order, events ...outbox.Event) error
}

type Tx interface {
	Products() ProductRepository
	Orders() OrderRepository
	Commit(ctx context.Context) error
	// Rollback after Commit is a no-op.
	Rollback(ctx context.Context) error
}

type Gateway interface {
	Begin(ctx context.Context) (Tx, error)
	Products() ProductRepository
	Orders() OrderRepository
	// IsTransient reports whether err is an infrastructure failure worth
	// re-running the whole unit of work for.
	IsTransient(err error) bool
}
