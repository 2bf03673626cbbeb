package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
)

// Order is the aggregate root for a checkout. Line items are owned by the
// order and can only change while it is Pending.
type Order struct {
	id          uuid.UUID
	number      string
	email       string
	status      Status
	total       decimal.Decimal
	items       []*lineItem
	createdAt   time.Time
	updatedAt   time.Time
	processedAt *time.Time
	version     int64
}

type OrderSnapshot struct {
	ID            uuid.UUID
	Number        string
	CustomerEmail string
	Status        Status
	TotalAmount   decimal.Decimal
	Items         []ItemSnapshot
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	Version       int64
}

func NewOrder(customerEmail string) (*Order, error) {
	email, err := normalizeEmail(customerEmail)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Order{
		id:        uuid.New(),
		number:    newOrderNumber(now),
		email:     email,
		status:    StatusPending,
		total:     decimal.Zero,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// HydrateOrder rebuilds an order from storage. The total is recomputed from the lines.
func HydrateOrder(s OrderSnapshot) *Order {
	o := &Order{
		id:          s.ID,
		number:      s.Number,
		email:       s.CustomerEmail,
		status:      s.Status,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
		processedAt: s.ProcessedAt,
		version:     s.Version,
		items:       make([]*lineItem, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		o.items = append(o.items, hydrateItem(it))
	}
	o.recalculate()
	return o
}

func (o *Order) Snapshot() OrderSnapshot {
	items := make([]ItemSnapshot, 0, len(o.items))
	for _, it := range o.items {
		items = append(items, it.snapshot())
	}
	var processed *time.Time
	if o.processedAt != nil {
		t := *o.processedAt
		processed = &t
	}
	return OrderSnapshot{
		ID:            o.id,
		Number:        o.number,
		CustomerEmail: o.email,
		Status:        o.status,
		TotalAmount:   o.total,
		Items:         items,
		CreatedAt:     o.createdAt,
		UpdatedAt:     o.updatedAt,
		ProcessedAt:   processed,
		Version:       o.version,
	}
}

func (o *Order) ID() uuid.UUID                { return o.id }
func (o *Order) Number() string               { return o.number }
func (o *Order) CustomerEmail() string        { return o.email }
func (o *Order) Status() Status               { return o.status }
func (o *Order) TotalAmount() decimal.Decimal { return o.total }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) UpdatedAt() time.Time         { return o.updatedAt }
func (o *Order) ProcessedAt() *time.Time      { return o.processedAt }
func (o *Order) Version() int64               { return o.version }
func (o *Order) ItemCount() int               { return len(o.items) }

// Items returns a copy of the line items in insertion order.
func (o *Order) Items() []ItemView {
	out := make([]ItemView, 0, len(o.items))
	for _, it := range o.items {
		out = append(out, it.view())
	}
	return out
}

func (o *Order) Item(productID uuid.UUID) (ItemView, bool) {
	if it := o.find(productID); it != nil {
		return it.view(), true
	}
	return ItemView{}, false
}

// AddItem adds quantity of product to the order. A product already on the
// order grows its existing line; the name and price captured when the line
// was first created are kept.
func (o *Order) AddItem(product *inventory.Product, quantity int) error {
	if err := o.EnsurePending(); err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("%w: product cannot be nil", inventory.ErrInvalidProduct)
	}
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if it := o.find(product.ID()); it != nil {
		it.setQuantity(it.quantity + quantity)
	} else {
		o.items = append(o.items, newLineItem(product, quantity))
	}
	o.changed()
	return nil
}

// RemoveItem drops the line for productID. Removing an absent product is a no-op.
func (o *Order) RemoveItem(productID uuid.UUID) error {
	if err := o.EnsurePending(); err != nil {
		return err
	}
	for i, it := range o.items {
		if it.productID == productID {
			o.items = append(o.items[:i], o.items[i+1:]...)
			o.changed()
			return nil
		}
	}
	return nil
}

// UpdateItemQuantity resizes a line. A quantity of zero or less removes it.
func (o *Order) UpdateItemQuantity(productID uuid.UUID, quantity int) error {
	if err := o.EnsurePending(); err != nil {
		return err
	}
	if quantity <= 0 {
		return o.RemoveItem(productID)
	}
	it := o.find(productID)
	if it == nil {
		return nil
	}
	it.setQuantity(quantity)
	o.changed()
	return nil
}

func (o *Order) Confirm() error {
	if o.status == StatusPending && len(o.items) == 0 {
		return ErrEmptyOrder
	}
	return o.apply(ActionConfirm)
}

// Process moves a Confirmed order to Processing.
func (o *Order) Process() error { return o.apply(ActionProcess) }

// Ship is legal from Confirmed, and from Processing for orders that went
// through the Confirmed → Processing → Shipped path.
func (o *Order) Ship() error { return o.apply(ActionShip) }

func (o *Order) Deliver() error { return o.apply(ActionDeliver) }

// Cancel is a no-op on an order that is already cancelled.
func (o *Order) Cancel() error { return o.apply(ActionCancel) }

// Apply runs a lifecycle action by name.
func (o *Order) Apply(action Action) error {
	if action == ActionConfirm {
		return o.Confirm()
	}
	return o.apply(action)
}

func (o *Order) apply(action Action) error {
	next, err := o.status.Next(action)
	if err != nil {
		return err
	}
	if next == o.status {
		return nil
	}
	o.status = next
	now := time.Now().UTC()
	if next == StatusConfirmed {
		o.processedAt = &now
	}
	o.updatedAt = now
	return nil
}

// EnsurePending fails with ErrOrderNotPending unless items may still change.
func (o *Order) EnsurePending() error {
	if o.status != StatusPending {
		return fmt.Errorf("%w: cannot modify order with status %s", ErrOrderNotPending, o.status)
	}
	return nil
}

func (o *Order) find(productID uuid.UUID) *lineItem {
	for _, it := range o.items {
		if it.productID == productID {
			return it
		}
	}
	return nil
}

func (o *Order) changed() {
	o.recalculate()
	o.updatedAt = time.Now().UTC()
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for _, it := range o.items {
		total = total.Add(it.totalPrice())
	}
	o.total = total
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: customer email cannot be empty", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return strings.ToLower(email), nil
}

// NormalizeEmail applies the same normalization used when an order is created.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
