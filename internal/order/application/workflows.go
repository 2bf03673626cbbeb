package application

import (
	"context"
	"errors"

	"github.com/google/uuid"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
)

// CreateOrder reserves stock for every requested line and persists the new
// order in one transaction. Any failure leaves every product untouched.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) result.Result[OrderView] {
	const op = "create_order"
	if err := req.validate(); err != nil {
		return fail[OrderView](c, op, "An error occurred while creating the order", err)
	}
	items := merge(req.Items)

	var created *domain.Order
	err := c.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := domain.NewOrder(req.CustomerEmail)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		found, err := tx.Products().GetMany(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*inventory.Product, len(found))
		for _, p := range found {
			byID[p.ID()] = p
		}

		var missing []uuid.UUID
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &ProductsNotFoundError{IDs: missing}
		}

		var inactive []string
		for _, id := range ids {
			if err := byID[id].EnsureOrderable(); err != nil {
				inactive = append(inactive, byID[id].Name())
			}
		}
		if len(inactive) > 0 {
			return &InactiveProductsError{Names: inactive}
		}

		// Check every line before touching any of them.
		for _, it := range items {
			p := byID[it.ProductID]
			if p.StockQuantity() < it.Quantity {
				return &inventory.InsufficientStockError{Product: p.Name(), Available: p.StockQuantity(), Requested: it.Quantity}
			}
		}

		stockEvents := make([]outbox.Event, 0, len(items))
		for _, it := range items {
			p := byID[it.ProductID]
			ev, err := c.reserve(ctx, tx.Products(), p, o.ID(), it.Quantity)
			if err != nil {
				return err
			}
			if err := o.AddItem(p, it.Quantity); err != nil {
				return err
			}
			stockEvents = append(stockEvents, ev)
		}

		ev, err := outbox.NewEvent(ctx, aggregateOrder, o.ID().String(), domain.EventOrderCreated, domain.OrderCreated{
			OrderID:       o.ID(),
			OrderNumber:   o.Number(),
			CustomerEmail: o.CustomerEmail(),
			TotalAmount:   o.TotalAmount(),
			Items:         o.Items(),
		})
		if err != nil {
			return err
		}
		if err := tx.Orders().Add(ctx, o, append([]outbox.Event{ev}, stockEvents...)...); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return fail[OrderView](c, op, "An error occurred while creating the order", err, "customer_email", req.CustomerEmail)
	}

	c.log.Info("order created", "order_id", created.ID(), "order_number", created.Number(), "items", created.ItemCount())
	return succeed(c, op, result.Created(viewOf(created), "Order created successfully"))
}

// AddItem reserves quantity more of a product and adds it to a Pending order.
func (c *Coordinator) AddItem(ctx context.Context, orderID uuid.UUID, req ItemRequest) result.Result[OrderView] {
	const op = "add_item"
	const generic = "An error occurred while adding the item to the order"
	if err := req.validate(); err != nil {
		return fail[OrderView](c, op, generic, err)
	}

	var updated *domain.Order
	err := c.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := loadOrder(ctx, tx.Orders(), orderID)
		if err != nil {
			return err
		}
		if err := o.EnsurePending(); err != nil {
			return err
		}
		p, err := loadProduct(ctx, tx.Products(), req.ProductID)
		if err != nil {
			return err
		}
		if err := p.EnsureOrderable(); err != nil {
			return err
		}

		stockEv, err := c.reserve(ctx, tx.Products(), p, o.ID(), req.Quantity)
		if err != nil {
			return err
		}
		if err := o.AddItem(p, req.Quantity); err != nil {
			return err
		}
		if err := c.saveItems(ctx, tx, o, stockEv); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return fail[OrderView](c, op, generic, err, "order_id", orderID, "product_id", req.ProductID)
	}
	c.log.Info("order item added", "order_id", orderID, "product_id", req.ProductID, "quantity", req.Quantity)
	return succeed(c, op, result.OK(viewOf(updated), "Item added to order successfully"))
}

// UpdateItem resizes a line, reserving or restoring the difference. A
// quantity of zero or less removes the line.
func (c *Coordinator) UpdateItem(ctx context.Context, orderID uuid.UUID, req ItemRequest) result.Result[OrderView] {
	const op = "update_item"
	const generic = "An error occurred while updating the order item"
	if req.ProductID == uuid.Nil {
		return fail[OrderView](c, op, generic, invalidRequest("Product ID is required"))
	}
	if req.Quantity > MaxQuantityPerItem {
		return fail[OrderView](c, op, generic, invalidRequest("Quantity cannot exceed %d per item", MaxQuantityPerItem))
	}

	updated, err := c.resize(ctx, orderID, req.ProductID, req.Quantity)
	if err != nil {
		return fail[OrderView](c, op, generic, err, "order_id", orderID, "product_id", req.ProductID)
	}
	c.log.Info("order item updated", "order_id", orderID, "product_id", req.ProductID, "quantity", req.Quantity)
	return succeed(c, op, result.OK(viewOf(updated), "Order item updated successfully"))
}

// RemoveItem drops a line and restores its stock.
func (c *Coordinator) RemoveItem(ctx context.Context, orderID, productID uuid.UUID) result.Result[OrderView] {
	const op = "remove_item"
	updated, err := c.resize(ctx, orderID, productID, 0)
	if err != nil {
		return fail[OrderView](c, op, "An error occurred while removing the item from the order", err, "order_id", orderID, "product_id", productID)
	}
	c.log.Info("order item removed", "order_id", orderID, "product_id", productID)
	return succeed(c, op, result.OK(viewOf(updated), "Item removed from order successfully"))
}

func (c *Coordinator) resize(ctx context.Context, orderID, productID uuid.UUID, quantity int) (*domain.Order, error) {
	quantity = max(quantity, 0)

	var updated *domain.Order
	err := c.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := loadOrder(ctx, tx.Orders(), orderID)
		if err != nil {
			return err
		}
		if err := o.EnsurePending(); err != nil {
			return err
		}
		line, ok := o.Item(productID)
		if !ok {
			return domain.ErrItemNotFound
		}
		delta := quantity - line.Quantity
		if delta == 0 {
			updated = o
			return nil
		}

		var stockEv outbox.Event
		p, err := loadProduct(ctx, tx.Products(), productID)
		switch {
		case errors.Is(err, storage.ErrNotFound) && delta < 0:
			// The product was deleted; its stock has nowhere to go.
			c.log.Debug("skipping restore for deleted product", "order_id", orderID, "product_id", productID)
		case err != nil:
			return err
		case delta > 0:
			if err := p.EnsureOrderable(); err != nil {
				return err
			}
			if stockEv, err = c.reserve(ctx, tx.Products(), p, orderID, delta); err != nil {
				return err
			}
		default:
			if stockEv, err = c.restore(ctx, tx.Products(), p, orderID, -delta); err != nil {
				return err
			}
		}

		if err := o.UpdateItemQuantity(productID, quantity); err != nil {
			return err
		}
		var events []outbox.Event
		if stockEv.Type != "" {
			events = append(events, stockEv)
		}
		if err := c.saveItems(ctx, tx, o, events...); err != nil {
			return err
		}
		updated = o
		return nil
	})
	return updated, err
}

func (c *Coordinator) saveItems(ctx context.Context, tx storage.Tx, o *domain.Order, extra ...outbox.Event) error {
	ev, err := outbox.NewEvent(ctx, aggregateOrder, o.ID().String(), domain.EventOrderItemsChanged, domain.OrderItemsChanged{
		OrderID:     o.ID(),
		TotalAmount: o.TotalAmount(),
		Items:       o.Items(),
	})
	if err != nil {
		return err
	}
	return tx.Orders().Save(ctx, o, append([]outbox.Event{ev}, extra...)...)
}

// CancelOrder cancels an order. Stock is restored only when the order was
// Confirmed at the moment of cancellation, one restore per line for exactly
// the quantity on that line. Cancelling a cancelled order changes nothing.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID uuid.UUID) result.Result[OrderView] {
	const op = "cancel_order"

	var cancelled *domain.Order
	err := c.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := loadOrder(ctx, tx.Orders(), orderID)
		if err != nil {
			return err
		}
		from := o.Status()
		if err := o.Cancel(); err != nil {
			return err
		}
		if from == domain.StatusCancelled {
			cancelled = o
			return nil
		}

		var events []outbox.Event
		if from == domain.StatusConfirmed {
			for _, line := range o.Items() {
				p, err := loadProduct(ctx, tx.Products(), line.ProductID)
				if errors.Is(err, storage.ErrNotFound) {
					c.log.Debug("skipping restore for deleted product", "order_id", orderID, "product_id", line.ProductID)
					continue
				}
				if err != nil {
					return err
				}
				ev, err := c.restore(ctx, tx.Products(), p, orderID, line.Quantity)
				if err != nil {
					return err
				}
				events = append(events, ev)
			}
		}

		ev, err := statusEvent(ctx, o, from)
		if err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, o, append([]outbox.Event{ev}, events...)...); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return fail[OrderView](c, op, "An error occurred while cancelling the order", err, "order_id", orderID)
	}
	c.log.Info("order cancelled", "order_id", orderID, "order_number", cancelled.Number())
	return succeed(c, op, result.OK(viewOf(cancelled), "Order cancelled successfully"))
}
