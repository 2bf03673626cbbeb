package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
)

// lineItem references a product by id. Name and unit price are copied from
// the product when the line is created and never refreshed afterwards.
type lineItem struct {
	id          uuid.UUID
	productID   uuid.UUID
	productName string
	unitPrice   decimal.Decimal
	quantity    int
	createdAt   time.Time
	updatedAt   time.Time
}

// ItemView is a read-only copy of a line item.
type ItemView struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type ItemSnapshot struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func newLineItem(p *inventory.Product, quantity int) *lineItem {
	now := time.Now().UTC()
	return &lineItem{
		id:          uuid.New(),
		productID:   p.ID(),
		productName: p.Name(),
		unitPrice:   p.Price(),
		quantity:    quantity,
		createdAt:   now,
		updatedAt:   now,
	}
}

func hydrateItem(s ItemSnapshot) *lineItem {
	return &lineItem{
		id:          s.ID,
		productID:   s.ProductID,
		productName: s.ProductName,
		unitPrice:   s.UnitPrice,
		quantity:    s.Quantity,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
}

func (i *lineItem) setQuantity(quantity int) {
	i.quantity = quantity
	i.updatedAt = time.Now().UTC()
}

func (i *lineItem) totalPrice() decimal.Decimal {
	return i.unitPrice.Mul(decimal.NewFromInt(int64(i.quantity)))
}

func (i *lineItem) view() ItemView {
	return ItemView{
		ID:          i.id,
		ProductID:   i.productID,
		ProductName: i.productName,
		UnitPrice:   i.unitPrice,
		Quantity:    i.quantity,
		TotalPrice:  i.totalPrice(),
	}
}

func (i *lineItem) snapshot() ItemSnapshot {
	return ItemSnapshot{
		ID:          i.id,
		ProductID:   i.productID,
		ProductName: i.productName,
		UnitPrice:   i.unitPrice,
		Quantity:    i.quantity,
		CreatedAt:   i.createdAt,
		UpdatedAt:   i.updatedAt,
	}
}
