package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
)

// Confirm, Process, Ship and Deliver touch only the order, so they save it
// directly instead of opening a multi-step transaction.

func (c *Coordinator) ConfirmOrder(ctx context.Context, id uuid.UUID) result.Result[OrderView] {
	return c.transition(ctx, id, domain.ActionConfirm, "Order confirmed successfully", "An error occurred while confirming the order")
}

func (c *Coordinator) ProcessOrder(ctx context.Context, id uuid.UUID) result.Result[OrderView] {
	return c.transition(ctx, id, domain.ActionProcess, "Order moved to processing", "An error occurred while processing the order")
}

func (c *Coordinator) ShipOrder(ctx context.Context, id uuid.UUID) result.Result[OrderView] {
	return c.transition(ctx, id, domain.ActionShip, "Order shipped successfully", "An error occurred while shipping the order")
}

func (c *Coordinator) DeliverOrder(ctx context.Context, id uuid.UUID) result.Result[OrderView] {
	return c.transition(ctx, id, domain.ActionDeliver, "Order delivered successfully", "An error occurred while delivering the order")
}

func (c *Coordinator) transition(ctx context.Context, id uuid.UUID, action domain.Action, okMsg, generic string) result.Result[OrderView] {
	op := string(action) + "_order"

	var o *domain.Order
	err := c.strategy.Execute(ctx, func(ctx context.Context) error {
		orders := c.gw.Orders()
		cur, err := loadOrder(ctx, orders, id)
		if err != nil {
			return err
		}
		err = retry.OnConflict(ctx, isConflict,
			func(ctx context.Context) error {
				from := cur.Status()
				if err := cur.Apply(action); err != nil {
					return err
				}
				ev, err := statusEvent(ctx, cur, from)
				if err != nil {
					return err
				}
				return orders.Save(ctx, cur, ev)
			},
			func(ctx context.Context) error {
				c.metrics.Retry("entity")
				fresh, err := loadOrder(ctx, orders, id)
				if err != nil {
					return err
				}
				cur = fresh
				return nil
			})
		if err != nil {
			return err
		}
		o = cur
		return nil
	})
	if err != nil {
		return fail[OrderView](c, op, generic, err, "order_id", id)
	}
	c.log.Info("order status changed", "order_id", id, "order_number", o.Number(), "status", o.Status())
	return succeed(c, op, result.OK(viewOf(o), okMsg))
}

func statusEvent(ctx context.Context, o *domain.Order, from domain.Status) (outbox.Event, error) {
	at := o.UpdatedAt()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return outbox.NewEvent(ctx, aggregateOrder, o.ID().String(), eventForStatus(o.Status()), domain.StatusChanged{
		OrderID:     o.ID(),
		OrderNumber: o.Number(),
		From:        from,
		To:          o.Status(),
		At:          at,
	})
}

func eventForStatus(s domain.Status) string {
	switch s {
	case domain.StatusConfirmed:
		return domain.EventFor(domain.ActionConfirm)
	case domain.StatusProcessing:
		return domain.EventFor(domain.ActionProcess)
	case domain.StatusShipped:
		return domain.EventFor(domain.ActionShip)
	case domain.StatusDelivered:
		return domain.EventFor(domain.ActionDeliver)
	default:
		return domain.EventFor(domain.ActionCancel)
	}
}
