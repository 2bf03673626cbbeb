// Package application is the product administration surface over the stock ledger.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/metrics"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
)

const MaxBatchIDs = 100

var (
	ErrInvalidRequest = errors.New("invalid request")
	maxPrice          = decimal.NewFromInt(1_000_000)
)

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

type CreateProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

// UpdateProductRequest is a partial update; nil fields are left alone.
type UpdateProductRequest struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
}

type ProductView struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func viewOf(p *domain.Product) ProductView {
	return ProductView{
		ID:            p.ID(),
		Name:          p.Name(),
		Description:   p.Description(),
		Price:         p.Price(),
		StockQuantity: p.StockQuantity(),
		IsActive:      p.IsActive(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	}
}

func viewsOf(products []*domain.Product) []ProductView {
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		out = append(out, viewOf(p))
	}
	return out
}

type Service struct {
	log      *slog.Logger
	gw       storage.Gateway
	strategy *retry.Strategy
	metrics  *metrics.Metrics
}

func NewService(log *slog.Logger, gw storage.Gateway, strategy *retry.Strategy, m *metrics.Metrics) *Service {
	return &Service{log: log, gw: gw, strategy: strategy, metrics: m}
}

func (s *Service) Create(ctx context.Context, req CreateProductRequest) result.Result[ProductView] {
	const op = "create_product"
	if req.Price.GreaterThanOrEqual(maxPrice) {
		return s.fail(op, "An error occurred while creating the product", invalidRequest("Price cannot exceed 1,000,000"))
	}
	p, err := domain.NewProduct(req.Name, req.Description, req.Price, req.StockQuantity)
	if err != nil {
		return s.fail(op, "An error occurred while creating the product", err)
	}
	err = s.strategy.Execute(ctx, func(ctx context.Context) error {
		return s.gw.Products().Add(ctx, p)
	})
	if err != nil {
		return s.fail(op, "An error occurred while creating the product", err, "name", req.Name)
	}
	s.log.Info("product created", "product_id", p.ID(), "name", p.Name(), "stock", p.StockQuantity())
	return succeed(s, op, result.Created(viewOf(p), "Product created successfully"))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) result.Result[ProductView] {
	const op = "get_product"
	p, err := s.gw.Products().Get(ctx, id)
	if err != nil {
		return s.fail(op, "An error occurred while retrieving the product", err, "product_id", id)
	}
	return succeed(s, op, result.OK(viewOf(p), "Product retrieved successfully"))
}

func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) result.Result[[]ProductView] {
	const op = "get_products_by_ids"
	if len(ids) == 0 {
		return failAs[[]ProductView](s, op, "", invalidRequest("Product IDs are required"))
	}
	if len(ids) > MaxBatchIDs {
		return failAs[[]ProductView](s, op, "", invalidRequest("Cannot request more than %d products at once", MaxBatchIDs))
	}
	products, err := s.gw.Products().GetMany(ctx, ids)
	if err != nil {
		return failAs[[]ProductView](s, op, "An error occurred while retrieving products", err)
	}
	return succeed(s, op, result.OK(viewsOf(products), "Products retrieved successfully"))
}

func (s *Service) List(ctx context.Context, page storage.PageRequest, includeInactive bool) result.Result[result.Page[ProductView]] {
	const op = "list_products"
	page = page.Normalize()
	products, total, err := s.gw.Products().List(ctx, page, includeInactive)
	if err != nil {
		return failAs[result.Page[ProductView]](s, op, "An error occurred while retrieving products", err)
	}
	return succeed(s, op, result.OK(result.NewPage(viewsOf(products), total, page.Page, page.PageSize), "Products retrieved successfully"))
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateProductRequest) result.Result[ProductView] {
	const op = "update_product"
	if req.Price != nil && req.Price.GreaterThanOrEqual(maxPrice) {
		return s.fail(op, "", invalidRequest("Price cannot exceed 1,000,000"))
	}
	p, err := s.mutate(ctx, id, func(p *domain.Product) error {
		name, desc, price := p.Name(), p.Description(), p.Price()
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			desc = *req.Description
		}
		if req.Price != nil {
			price = *req.Price
		}
		if err := p.UpdateDetails(name, desc, price); err != nil {
			return err
		}
		if req.StockQuantity != nil {
			if err := p.UpdateStock(*req.StockQuantity); err != nil {
				return err
			}
		}
		if req.IsActive != nil {
			if *req.IsActive {
				p.Activate()
			} else {
				p.Deactivate()
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(op, "An error occurred while updating the product", err, "product_id", id)
	}
	s.log.Info("product updated", "product_id", id, "version", p.Version())
	return succeed(s, op, result.OK(viewOf(p), "Product updated successfully"))
}

// UpdateStock replaces the stock count. It is an administrative correction,
// not a reservation.
func (s *Service) UpdateStock(ctx context.Context, id uuid.UUID, quantity int) result.Result[ProductView] {
	const op = "update_stock"
	p, err := s.mutate(ctx, id, func(p *domain.Product) error { return p.UpdateStock(quantity) })
	if err != nil {
		return s.fail(op, "An error occurred while updating stock", err, "product_id", id)
	}
	s.log.Info("product stock set", "product_id", id, "stock", quantity)
	return succeed(s, op, result.OK(viewOf(p), "Stock updated successfully"))
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) result.Result[bool] {
	const op = "delete_product"
	err := s.strategy.Execute(ctx, func(ctx context.Context) error {
		products := s.gw.Products()
		p, err := products.Get(ctx, id)
		if err != nil {
			return err
		}
		return retry.OnConflict(ctx, isConflict,
			func(ctx context.Context) error { return products.Remove(ctx, p) },
			func(ctx context.Context) error {
				s.metrics.Retry("entity")
				fresh, err := products.Get(ctx, id)
				if err != nil {
					return err
				}
				p = fresh
				return nil
			})
	})
	if err != nil {
		return failAs[bool](s, op, "An error occurred while deleting the product", err, "product_id", id)
	}
	s.log.Info("product deleted", "product_id", id)
	return succeed(s, op, result.OK(true, "Product deleted successfully"))
}

// mutate loads the product, applies change and saves it. A version conflict
// reloads and applies change once more; transient failures re-run it all.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, change func(*domain.Product) error) (*domain.Product, error) {
	var out *domain.Product
	err := s.strategy.Execute(ctx, func(ctx context.Context) error {
		products := s.gw.Products()
		p, err := products.Get(ctx, id)
		if err != nil {
			return err
		}
		err = retry.OnConflict(ctx, isConflict,
			func(ctx context.Context) error {
				if err := change(p); err != nil {
					return err
				}
				return products.Save(ctx, p)
			},
			func(ctx context.Context) error {
				s.metrics.Retry("entity")
				fresh, err := products.Get(ctx, id)
				if err != nil {
					return err
				}
				p = fresh
				return nil
			})
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) fail(op, generic string, err error, attrs ...any) result.Result[ProductView] {
	return failAs[ProductView](s, op, generic, err, attrs...)
}

func succeed[T any](s *Service, op string, r result.Result[T]) result.Result[T] {
	s.metrics.Observe(op, r.StatusCode)
	return r
}

func failAs[T any](s *Service, op, generic string, err error, attrs ...any) result.Result[T] {
	status, msg := http.StatusInternalServerError, generic
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, "Product not found"
	case errors.Is(err, storage.ErrConcurrencyConflict):
		status, msg = http.StatusConflict, "Product was modified by another process. Please try again."
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidQuantity):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		s.log.Error(generic, append([]any{"op", op, "err", err}, attrs...)...)
	}
	s.metrics.Observe(op, status)
	return result.Fail[T](msg, status)
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrConcurrencyConflict)
}
