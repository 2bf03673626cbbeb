package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductInactive   = errors.New("product is not active")
)

// InsufficientStockError reports a reservation that the ledger could not cover.
type InsufficientStockError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Required: %d", e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProduct, fmt.Sprintf(format, args...))
}

type InactiveProductError struct {
	Product string
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("Product %s is not active", e.Product)
}

func (e *InactiveProductError) Is(target error) bool {
	return target == ErrProductInactive
}
