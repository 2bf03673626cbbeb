package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
)

// ErrInvalidRequest marks malformed input caught before any store access.
var ErrInvalidRequest = errors.New("invalid request")

const conflictMessage = "Stock levels were modified by another process. Please try again."

type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return storage.ErrNotFound }

// ProductsNotFoundError lists every requested product id the store did not return.
type ProductsNotFoundError struct {
	IDs []uuid.UUID
}

func (e *ProductsNotFoundError) Error() string {
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, id.String())
	}
	return "Products not found: " + strings.Join(ids, ", ")
}

func (e *ProductsNotFoundError) Unwrap() error { return storage.ErrNotFound }

type InactiveProductsError struct {
	Names []string
}

func (e *InactiveProductsError) Error() string {
	return "Inactive products: " + strings.Join(e.Names, ", ")
}

func (e *InactiveProductsError) Unwrap() error { return inventory.ErrProductInactive }

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// classify maps a workflow error onto a status code and a message safe to
// return to the caller. ok is false for unexpected errors.
func classify(err error) (status int, message string, ok bool) {
	var (
		notFound *NotFoundError
		missing  *ProductsNotFoundError
	)
	switch {
	case errors.As(err, &missing):
		return http.StatusNotFound, missing.Error(), true
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error(), true
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "Order item not found", true
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Resource not found", true
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, err.Error(), true
	case errors.Is(err, storage.ErrConcurrencyConflict):
		return http.StatusConflict, conflictMessage, true
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, inventory.ErrProductInactive),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusBadRequest, err.Error(), true
	}
	return http.StatusInternalServerError, "", false
}

// fail turns err into a failed result. Unexpected errors are logged with
// attrs and reported with the generic message only.
func fail[T any](c *Coordinator, op, generic string, err error, attrs ...any) result.Result[T] {
	status, msg, ok := classify(err)
	if !ok {
		c.log.Error(generic, append([]any{"op", op, "err", err}, attrs...)...)
		msg = generic
	} else {
		c.log.Debug("order operation rejected", append([]any{"op", op, "status", status, "err", err}, attrs...)...)
	}
	c.metrics.Observe(op, status)
	return result.Fail[T](msg, status)
}

func succeed[T any](c *Coordinator, op string, r result.Result[T]) result.Result[T] {
	c.metrics.Observe(op, r.StatusCode)
	return r
}
