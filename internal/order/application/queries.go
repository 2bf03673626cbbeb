package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/result"
)

func (c *Coordinator) GetOrder(ctx context.Context, id uuid.UUID) result.Result[OrderView] {
	const op = "get_order"
	o, err := loadOrder(ctx, c.gw.Orders(), id)
	if err != nil {
		return fail[OrderView](c, op, "An error occurred while retrieving the order", err, "order_id", id)
	}
	return succeed(c, op, result.OK(viewOf(o), "Order retrieved successfully"))
}

func (c *Coordinator) ListOrders(ctx context.Context, page storage.PageRequest) result.Result[result.Page[OrderView]] {
	const op = "list_orders"
	page = page.Normalize()
	orders, total, err := c.gw.Orders().List(ctx, page, storage.OrderFilter{})
	if err != nil {
		return fail[result.Page[OrderView]](c, op, "An error occurred while retrieving orders", err)
	}
	return succeed(c, op, result.OK(result.NewPage(viewsOf(orders), total, page.Page, page.PageSize), "Orders retrieved successfully"))
}

func (c *Coordinator) ListCustomerOrders(ctx context.Context, email string, page storage.PageRequest) result.Result[result.Page[OrderView]] {
	const op = "list_customer_orders"
	const generic = "An error occurred while retrieving customer orders"
	if strings.TrimSpace(email) == "" {
		return fail[result.Page[OrderView]](c, op, generic, invalidRequest("Customer email is required"))
	}
	page = page.Normalize()
	orders, total, err := c.gw.Orders().List(ctx, page, storage.OrderFilter{CustomerEmail: email})
	if err != nil {
		return fail[result.Page[OrderView]](c, op, generic, err, "customer_email", email)
	}
	return succeed(c, op, result.OK(result.NewPage(viewsOf(orders), total, page.Page, page.PageSize), "Customer orders retrieved successfully"))
}
