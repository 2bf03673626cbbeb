package domain

import "github.com/google/uuid"

// Outbox payloads describing ledger movements made on behalf of an order.

type StockReserved struct {
	ProductID uuid.UUID `json:"product_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Quantity  int       `json:"quantity"`
	Remaining int       `json:"remaining"`
}

type StockReleased struct {
	ProductID uuid.UUID `json:"product_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Quantity  int       `json:"quantity"`
	Remaining int       `json:"remaining"`
}

const (
	EventStockReserved = "inventory.stock_reserved"
	EventStockReleased = "inventory.stock_released"
)
