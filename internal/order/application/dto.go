package application

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
)

const (
	MaxItemsPerOrder    = 100
	MaxQuantityPerItem  = 1000
	MaxCustomerEmailLen = 200
)

type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerEmail string        `json:"customer_email"`
	Items         []ItemRequest `json:"items"`
}

func (r CreateOrderRequest) validate() error {
	email := strings.TrimSpace(r.CustomerEmail)
	if email == "" {
		return invalidRequest("Customer email is required")
	}
	if len(email) > MaxCustomerEmailLen {
		return invalidRequest("Email cannot exceed %d characters", MaxCustomerEmailLen)
	}
	if len(r.Items) == 0 {
		return invalidRequest("Order must contain at least one item")
	}
	if len(r.Items) > MaxItemsPerOrder {
		return invalidRequest("Order cannot contain more than %d items", MaxItemsPerOrder)
	}
	for _, it := range r.Items {
		if err := it.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r ItemRequest) validate() error {
	if r.ProductID == uuid.Nil {
		return invalidRequest("Product ID is required")
	}
	if r.Quantity <= 0 {
		return invalidRequest("Quantity must be greater than 0")
	}
	if r.Quantity > MaxQuantityPerItem {
		return invalidRequest("Quantity cannot exceed %d per item", MaxQuantityPerItem)
	}
	return nil
}

// merge folds repeated product ids into one line, keeping first-seen order.
func merge(items []ItemRequest) []ItemRequest {
	out := make([]ItemRequest, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

type OrderView struct {
	ID            uuid.UUID         `json:"id"`
	OrderNumber   string            `json:"order_number"`
	CustomerEmail string            `json:"customer_email"`
	Status        domain.Status     `json:"status"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Items         []domain.ItemView `json:"items"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

func viewOf(o *domain.Order) OrderView {
	return OrderView{
		ID:            o.ID(),
		OrderNumber:   o.Number(),
		CustomerEmail: o.CustomerEmail(),
		Status:        o.Status(),
		TotalAmount:   o.TotalAmount(),
		Items:         o.Items(),
		CreatedAt:     o.CreatedAt(),
		UpdatedAt:     o.UpdatedAt(),
		ProcessedAt:   o.ProcessedAt(),
	}
}

func viewsOf(orders []*domain.Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, viewOf(o))
	}
	return out
}
