package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated      = "order.created"
	EventOrderItemsChanged = "order.items_changed"
	EventOrderConfirmed    = "order.confirmed"
	EventOrderProcessing   = "order.processing"
	EventOrderShipped      = "order.shipped"
	EventOrderDelivered    = "order.delivered"
	EventOrderCancelled    = "order.cancelled"
)

type OrderCreated struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []ItemView      `json:"items"`
}

type OrderItemsChanged struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []ItemView      `json:"items"`
}

// StatusChanged is the payload for every lifecycle event.
type StatusChanged struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	At          time.Time `json:"at"`
}

// EventFor maps a lifecycle action to its outbox event type.
func EventFor(action Action) string {
	switch action {
	case ActionConfirm:
		return EventOrderConfirmed
	case ActionProcess:
		return EventOrderProcessing
	case ActionShip:
		return EventOrderShipped
	case ActionDeliver:
		return EventOrderDelivered
	default:
		return EventOrderCancelled
	}
}
