package domain_test

import (
	"math/rand/v2"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
)

func product(t *testing.T, name, price string) *inventory.Product {
	t.Helper()
	p, err := inventory.NewProduct(name, "", decimal.RequireFromString(price), 100)
	require.NoError(t, err)
	return p
}

func pendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("buyer@example.com")
	require.NoError(t, err)
	return o
}

func TestNewOrder(t *testing.T) {
	o, err := domain.NewOrder("  Buyer@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", o.CustomerEmail())
	assert.Equal(t, domain.StatusPending, o.Status())
	assert.True(t, o.TotalAmount().IsZero())
	assert.Nil(t, o.ProcessedAt())
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`), o.Number())
}

func TestNewOrder_InvalidEmail(t *testing.T) {
	for _, email := range []string{"", "   ", "not-an-email", "Buyer <buyer@example.com>"} {
		_, err := domain.NewOrder(email)
		assert.ErrorIs(t, err, domain.ErrInvalidEmail, email)
	}
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	o := pendingOrder(t)
	p := product(t, "Widget", "2.50")

	require.NoError(t, o.AddItem(p, 2))
	require.NoError(t, o.AddItem(p, 3))

	items := o.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.True(t, decimal.RequireFromString("12.50").Equal(items[0].TotalPrice))
	assert.True(t, decimal.RequireFromString("12.50").Equal(o.TotalAmount()))
}

func TestAddItem_SnapshotsNameAndPrice(t *testing.T) {
	o := pendingOrder(t)
	p := product(t, "Widget", "2.50")
	require.NoError(t, o.AddItem(p, 1))

	require.NoError(t, p.UpdateDetails("Renamed", "", decimal.RequireFromString("99")))
	require.NoError(t, o.AddItem(p, 1))

	line, ok := o.Item(p.ID())
	require.True(t, ok)
	assert.Equal(t, "Widget", line.ProductName)
	assert.True(t, decimal.RequireFromString("2.50").Equal(line.UnitPrice))
	assert.True(t, decimal.RequireFromString("5").Equal(o.TotalAmount()))
}

func TestAddItem_Rejects(t *testing.T) {
	o := pendingOrder(t)
	assert.ErrorIs(t, o.AddItem(nil, 1), inventory.ErrInvalidProduct)
	assert.ErrorIs(t, o.AddItem(product(t, "W", "1"), 0), inventory.ErrInvalidQuantity)
	assert.Zero(t, o.ItemCount())
}

func TestRemoveAndUpdateItem(t *testing.T) {
	o := pendingOrder(t)
	a := product(t, "A", "1.00")
	b := product(t, "B", "2.00")
	require.NoError(t, o.AddItem(a, 1))
	require.NoError(t, o.AddItem(b, 1))

	require.NoError(t, o.UpdateItemQuantity(b.ID(), 4))
	assert.True(t, decimal.RequireFromString("9").Equal(o.TotalAmount()))

	require.NoError(t, o.RemoveItem(uuid.New()))
	assert.Equal(t, 2, o.ItemCount())

	require.NoError(t, o.UpdateItemQuantity(a.ID(), 0))
	assert.Equal(t, 1, o.ItemCount())
	assert.True(t, decimal.RequireFromString("8").Equal(o.TotalAmount()))

	require.NoError(t, o.RemoveItem(b.ID()))
	assert.Zero(t, o.ItemCount())
	assert.True(t, o.TotalAmount().IsZero())
}

func TestItemsOnlyChangeWhilePending(t *testing.T) {
	o := pendingOrder(t)
	p := product(t, "A", "1.00")
	require.NoError(t, o.AddItem(p, 1))
	require.NoError(t, o.Confirm())

	assert.ErrorIs(t, o.AddItem(p, 1), domain.ErrOrderNotPending)
	assert.ErrorIs(t, o.RemoveItem(p.ID()), domain.ErrOrderNotPending)
	assert.ErrorIs(t, o.UpdateItemQuantity(p.ID(), 3), domain.ErrOrderNotPending)
	assert.Equal(t, 1, o.Items()[0].Quantity)
}

func TestConfirm(t *testing.T) {
	o := pendingOrder(t)
	assert.ErrorIs(t, o.Confirm(), domain.ErrEmptyOrder)

	require.NoError(t, o.AddItem(product(t, "A", "1"), 1))
	require.NoError(t, o.Confirm())
	assert.Equal(t, domain.StatusConfirmed, o.Status())
	require.NotNil(t, o.ProcessedAt())

	assert.ErrorIs(t, o.Confirm(), domain.ErrInvalidStateTransition)
}

func TestShipPendingFails(t *testing.T) {
	o := pendingOrder(t)
	err := o.Ship()
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, "cannot ship order with status Pending", err.Error())
	assert.Equal(t, domain.StatusPending, o.Status())
}

func TestFullLifecycle(t *testing.T) {
	o := pendingOrder(t)
	require.NoError(t, o.AddItem(product(t, "A", "1"), 1))
	require.NoError(t, o.Confirm())
	require.NoError(t, o.Process())
	assert.ErrorIs(t, o.Cancel(), domain.ErrInvalidStateTransition)
	require.NoError(t, o.Ship())
	require.NoError(t, o.Deliver())
	assert.Equal(t, domain.StatusDelivered, o.Status())

	for _, action := range []domain.Action{domain.ActionConfirm, domain.ActionProcess, domain.ActionShip, domain.ActionDeliver, domain.ActionCancel} {
		assert.ErrorIs(t, o.Apply(action), domain.ErrInvalidStateTransition, action)
	}
}

func TestCancel(t *testing.T) {
	o := pendingOrder(t)
	require.NoError(t, o.Cancel())
	assert.Equal(t, domain.StatusCancelled, o.Status())

	updated := o.UpdatedAt()
	require.NoError(t, o.Cancel())
	assert.Equal(t, updated, o.UpdatedAt())

	assert.ErrorIs(t, o.Confirm(), domain.ErrInvalidStateTransition)
}

func TestSnapshotIsACopy(t *testing.T) {
	o := pendingOrder(t)
	require.NoError(t, o.AddItem(product(t, "A", "1"), 1))
	snap := o.Snapshot()
	snap.Items[0].Quantity = 99

	assert.Equal(t, 1, o.Items()[0].Quantity)

	items := o.Items()
	items[0].Quantity = 42
	assert.Equal(t, 1, o.Items()[0].Quantity)
}

func TestHydrateRecomputesTotal(t *testing.T) {
	o := pendingOrder(t)
	require.NoError(t, o.AddItem(product(t, "A", "1.25"), 4))
	snap := o.Snapshot()
	snap.TotalAmount = decimal.RequireFromString("1000")

	h := domain.HydrateOrder(snap)
	assert.True(t, decimal.RequireFromString("5").Equal(h.TotalAmount()))
}

// The total equals the sum of line totals after any sequence of item edits.
func TestTotalMatchesLines(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	catalog := []*inventory.Product{
		product(t, "A", "0.99"),
		product(t, "B", "10.00"),
		product(t, "C", "3.33"),
		product(t, "D", "125.50"),
	}
	for run := 0; run < 100; run++ {
		o := pendingOrder(t)
		for step := 0; step < 40; step++ {
			p := catalog[rng.IntN(len(catalog))]
			switch rng.IntN(3) {
			case 0:
				require.NoError(t, o.AddItem(p, rng.IntN(5)+1))
			case 1:
				require.NoError(t, o.RemoveItem(p.ID()))
			default:
				require.NoError(t, o.UpdateItemQuantity(p.ID(), rng.IntN(7)-1))
			}

			sum := decimal.Zero
			seen := map[uuid.UUID]bool{}
			for _, it := range o.Items() {
				require.False(t, seen[it.ProductID], "duplicate line")
				seen[it.ProductID] = true
				require.GreaterOrEqual(t, it.Quantity, 1)
				require.True(t, it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Equal(it.TotalPrice))
				sum = sum.Add(it.TotalPrice)
			}
			require.True(t, sum.Equal(o.TotalAmount()), "total %s != sum %s", o.TotalAmount(), sum)
		}
	}
}
