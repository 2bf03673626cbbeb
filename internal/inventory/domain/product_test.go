package domain_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
)

func newProduct(t *testing.T, stock int) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct("Widget", "A widget", decimal.RequireFromString("9.99"), stock)
	require.NoError(t, err)
	return p
}

func TestNewProduct(t *testing.T) {
	p, err := domain.NewProduct("  Widget  ", " desc ", decimal.RequireFromString("9.99"), 5)
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name())
	assert.Equal(t, "desc", p.Description())
	assert.Equal(t, 5, p.StockQuantity())
	assert.True(t, p.IsActive())
	assert.False(t, p.IsDeleted())
	assert.NotEqual(t, p.ID().String(), "00000000-0000-0000-0000-000000000000")
}

func TestNewProduct_Validation(t *testing.T) {
	price := decimal.RequireFromString("1")
	tests := []struct {
		name  string
		pname string
		desc  string
		price decimal.Decimal
		stock int
	}{
		{"blank name", "   ", "", price, 1},
		{"name too long", strings.Repeat("x", domain.MaxNameLength+1), "", price, 1},
		{"description too long", "W", strings.Repeat("x", domain.MaxDescriptionLength+1), price, 1},
		{"zero price", "W", "", decimal.Zero, 1},
		{"negative price", "W", "", decimal.RequireFromString("-1"), 1},
		{"negative stock", "W", "", price, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewProduct(tt.pname, tt.desc, tt.price, tt.stock)
			assert.ErrorIs(t, err, domain.ErrInvalidProduct)
		})
	}
}

func TestReserve(t *testing.T) {
	p := newProduct(t, 10)
	require.NoError(t, p.Reserve(3))
	assert.Equal(t, 7, p.StockQuantity())

	require.NoError(t, p.Reserve(7))
	assert.Equal(t, 0, p.StockQuantity())
}

func TestReserve_InsufficientStockLeavesProductUnchanged(t *testing.T) {
	p := newProduct(t, 5)
	before := p.Snapshot()

	err := p.Reserve(6)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, "Insufficient stock for Widget. Available: 5, Required: 6", err.Error())

	assert.Equal(t, 5, p.StockQuantity())
	assert.Equal(t, before, p.Snapshot())
}

func TestReserveRestore_RejectNonPositive(t *testing.T) {
	p := newProduct(t, 5)
	for _, q := range []int{0, -1} {
		assert.ErrorIs(t, p.Reserve(q), domain.ErrInvalidQuantity)
		assert.ErrorIs(t, p.Restore(q), domain.ErrInvalidQuantity)
	}
	assert.Equal(t, 5, p.StockQuantity())
}

func TestRestore_HasNoUpperBound(t *testing.T) {
	p := newProduct(t, 0)
	require.NoError(t, p.Restore(1_000_000))
	assert.Equal(t, 1_000_000, p.StockQuantity())
}

func TestUpdateStock(t *testing.T) {
	p := newProduct(t, 5)
	require.NoError(t, p.UpdateStock(0))
	assert.Equal(t, 0, p.StockQuantity())
	assert.ErrorIs(t, p.UpdateStock(-1), domain.ErrInvalidProduct)
	assert.Equal(t, 0, p.StockQuantity())
}

func TestUpdateDetails_IsAtomic(t *testing.T) {
	p := newProduct(t, 5)
	err := p.UpdateDetails("New name", "new", decimal.Zero)
	require.ErrorIs(t, err, domain.ErrInvalidProduct)
	assert.Equal(t, "Widget", p.Name())

	require.NoError(t, p.UpdateDetails("New name", "new", decimal.RequireFromString("3.50")))
	assert.Equal(t, "New name", p.Name())
	assert.True(t, decimal.RequireFromString("3.5").Equal(p.Price()))
}

func TestEnsureOrderable(t *testing.T) {
	p := newProduct(t, 5)
	assert.NoError(t, p.EnsureOrderable())

	p.Deactivate()
	err := p.EnsureOrderable()
	assert.ErrorIs(t, err, domain.ErrProductInactive)
	assert.Equal(t, "Product Widget is not active", err.Error())

	p.Activate()
	assert.NoError(t, p.EnsureOrderable())

	p.MarkDeleted()
	assert.ErrorIs(t, p.EnsureOrderable(), domain.ErrProductInactive)
}

func TestHydrateRoundTrip(t *testing.T) {
	p := newProduct(t, 5)
	snap := p.Snapshot()
	snap.Version = 7
	q := domain.HydrateProduct(snap)
	assert.Equal(t, int64(7), q.Version())
	assert.Equal(t, p.ID(), q.ID())
	assert.Equal(t, 5, q.StockQuantity())
}

// Stock follows a simple model under any interleaving of reserve and
// restore, and never drops below zero.
func TestStockNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for run := 0; run < 200; run++ {
		start := rng.IntN(20)
		p := newProduct(t, start)
		model := start
		for step := 0; step < 50; step++ {
			q := rng.IntN(8) + 1
			if rng.IntN(2) == 0 {
				err := p.Reserve(q)
				if q <= model {
					require.NoError(t, err)
					model -= q
				} else {
					require.ErrorIs(t, err, domain.ErrInsufficientStock)
				}
			} else {
				require.NoError(t, p.Restore(q))
				model += q
			}
			require.Equal(t, model, p.StockQuantity())
			require.GreaterOrEqual(t, p.StockQuantity(), 0)
		}
	}
}
