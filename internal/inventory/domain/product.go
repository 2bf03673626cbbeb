package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 1000
)

// Product is the stock ledger entry for a sellable item. Stock only moves
// through the methods below so the count can never go negative.
type Product struct {
	id          uuid.UUID
	name        string
	description string
	price       decimal.Decimal
	stock       int
	active      bool
	deleted     bool
	version     int64
	createdAt   time.Time
	updatedAt   time.Time
}

// ProductSnapshot is the persisted shape of a Product.
type ProductSnapshot struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Active      bool
	Deleted     bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewProduct(name, description string, price decimal.Decimal, stock int) (*Product, error) {
	p := &Product{
		id:        uuid.New(),
		active:    true,
		createdAt: time.Now().UTC(),
	}
	if err := p.setName(name); err != nil {
		return nil, err
	}
	if err := p.setDescription(description); err != nil {
		return nil, err
	}
	if err := p.setPrice(price); err != nil {
		return nil, err
	}
	if err := p.setStock(stock); err != nil {
		return nil, err
	}
	return p, nil
}

// HydrateProduct rebuilds a product from storage without re-running validation.
func HydrateProduct(s ProductSnapshot) *Product {
	return &Product{
		id:          s.ID,
		name:        s.Name,
		description: s.Description,
		price:       s.Price,
		stock:       s.Stock,
		active:      s.Active,
		deleted:     s.Deleted,
		version:     s.Version,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
}

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:          p.id,
		Name:        p.name,
		Description: p.description,
		Price:       p.price,
		Stock:       p.stock,
		Active:      p.active,
		Deleted:     p.deleted,
		Version:     p.version,
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
	}
}

func (p *Product) ID() uuid.UUID          { return p.id }
func (p *Product) Name() string           { return p.name }
func (p *Product) Description() string    { return p.description }
func (p *Product) Price() decimal.Decimal { return p.price }
func (p *Product) StockQuantity() int     { return p.stock }
func (p *Product) IsActive() bool         { return p.active }
func (p *Product) IsDeleted() bool        { return p.deleted }
func (p *Product) Version() int64         { return p.version }
func (p *Product) CreatedAt() time.Time   { return p.createdAt }
func (p *Product) UpdatedAt() time.Time   { return p.updatedAt }

func (p *Product) UpdateDetails(name, description string, price decimal.Decimal) error {
	next := *p
	if err := next.setName(name); err != nil {
		return err
	}
	if err := next.setDescription(description); err != nil {
		return err
	}
	if err := next.setPrice(price); err != nil {
		return err
	}
	*p = next
	p.touch()
	return nil
}

// UpdateStock replaces the stock count directly. Used for administrative corrections.
func (p *Product) UpdateStock(quantity int) error {
	if err := p.setStock(quantity); err != nil {
		return err
	}
	p.touch()
	return nil
}

// Reserve takes quantity units out of stock. On failure the product is unchanged.
func (p *Product) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.stock < quantity {
		return &InsufficientStockError{Product: p.name, Available: p.stock, Requested: quantity}
	}
	p.stock -= quantity
	p.touch()
	return nil
}

// Restore puts quantity units back. There is no upper bound.
func (p *Product) Restore(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.stock += quantity
	p.touch()
	return nil
}

func (p *Product) Activate() {
	p.active = true
	p.touch()
}

func (p *Product) Deactivate() {
	p.active = false
	p.touch()
}

// MarkDeleted soft-deletes the product. Existing order lines keep their snapshot.
func (p *Product) MarkDeleted() {
	p.deleted = true
	p.touch()
}

// EnsureOrderable reports whether the product may be reserved into a new order line.
func (p *Product) EnsureOrderable() error {
	if !p.active || p.deleted {
		return &InactiveProductError{Product: p.name}
	}
	return nil
}

func (p *Product) touch() {
	p.updatedAt = time.Now().UTC()
}

func (p *Product) setName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("product name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return invalid("product name cannot exceed %d characters", MaxNameLength)
	}
	p.name = name
	return nil
}

func (p *Product) setDescription(description string) error {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return invalid("product description cannot exceed %d characters", MaxDescriptionLength)
	}
	p.description = description
	return nil
}

func (p *Product) setPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return invalid("product price must be greater than zero")
	}
	p.price = price
	return nil
}

func (p *Product) setStock(quantity int) error {
	if quantity < 0 {
		return invalid("stock quantity cannot be negative")
	}
	p.stock = quantity
	return nil
}
