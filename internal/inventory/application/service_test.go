package application_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/catalog-checkout/internal/inventory/application"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/internal/storage/memory"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
)

func newService(t *testing.T) (*application.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	strategy := retry.NewStrategy(policy, store.IsTransient, logging.Discard())
	return application.NewService(logging.Discard(), store, strategy, nil), store
}

func create(t *testing.T, s *application.Service, name string, stock int) application.ProductView {
	t.Helper()
	res := s.Create(context.Background(), application.CreateProductRequest{
		Name:          name,
		Price:         decimal.RequireFromString("4.20"),
		StockQuantity: stock,
	})
	require.True(t, res.Success, res.Message)
	return res.Data
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGet(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	res := s.Create(ctx, application.CreateProductRequest{
		Name:          " Lamp ",
		Description:   "Desk lamp",
		Price:         decimal.RequireFromString("19.99"),
		StockQuantity: 4,
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "Lamp", res.Data.Name)
	assert.True(t, res.Data.IsActive)

	got := s.Get(ctx, res.Data.ID)
	require.True(t, got.Success)
	assert.Equal(t, 4, got.Data.StockQuantity)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.Data.Price))

	missing := s.Get(ctx, uuid.New())
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, "Product not found", missing.Message)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  application.CreateProductRequest
	}{
		{"blank name", application.CreateProductRequest{Name: " ", Price: decimal.RequireFromString("1")}},
		{"zero price", application.CreateProductRequest{Name: "A", Price: decimal.Zero}},
		{"price too high", application.CreateProductRequest{Name: "A", Price: decimal.RequireFromString("1000000")}},
		{"negative stock", application.CreateProductRequest{Name: "A", Price: decimal.RequireFromString("1"), StockQuantity: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Create(ctx, tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}
}

func TestDeleteHidesProduct(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	p := create(t, s, "Lamp", 1)

	res := s.Delete(ctx, p.ID)
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Data)

	assert.Equal(t, http.StatusNotFound, s.Get(ctx, p.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, s.Delete(ctx, p.ID).StatusCode)

	list := s.List(ctx, storage.PageRequest{}, true)
	require.True(t, list.Success)
	assert.Zero(t, list.Data.TotalCount)
}

func TestGetByIDs(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := create(t, s, "A", 1)
	b := create(t, s, "B", 1)

	res := s.GetByIDs(ctx, []uuid.UUID{a.ID, uuid.New(), b.ID})
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Data, 2)

	assert.Equal(t, http.StatusBadRequest, s.GetByIDs(ctx, nil).StatusCode)

	tooMany := make([]uuid.UUID, application.MaxBatchIDs+1)
	for i := range tooMany {
		tooMany[i] = uuid.New()
	}
	assert.Equal(t, http.StatusBadRequest, s.GetByIDs(ctx, tooMany).StatusCode)
}

func TestListOrdersByNameAndFiltersInactive(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	create(t, s, "Cherry", 1)
	create(t, s, "Apple", 1)
	banana := create(t, s, "Banana", 1)

	res := s.Update(ctx, banana.ID, application.UpdateProductRequest{IsActive: ptr(false)})
	require.True(t, res.Success, res.Message)

	active := s.List(ctx, storage.PageRequest{}, false)
	require.True(t, active.Success)
	require.Len(t, active.Data.Data, 2)
	assert.Equal(t, "Apple", active.Data.Data[0].Name)
	assert.Equal(t, "Cherry", active.Data.Data[1].Name)

	all := s.List(ctx, storage.PageRequest{Page: 1, PageSize: 2}, true)
	require.True(t, all.Success)
	assert.Equal(t, 3, all.Data.TotalCount)
	assert.Equal(t, 2, all.Data.TotalPages)
	assert.Equal(t, "Banana", all.Data.Data[1].Name)
}

func TestPartialUpdate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	p := create(t, s, "Lamp", 3)

	res := s.Update(ctx, p.ID, application.UpdateProductRequest{Price: ptr(decimal.RequireFromString("7.00"))})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Lamp", res.Data.Name)
	assert.Equal(t, 3, res.Data.StockQuantity)
	assert.True(t, decimal.RequireFromString("7").Equal(res.Data.Price))

	bad := s.Update(ctx, p.ID, application.UpdateProductRequest{Name: ptr("")})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Equal(t, "Lamp", s.Get(ctx, p.ID).Data.Name)

	assert.Equal(t, http.StatusNotFound, s.Update(ctx, uuid.New(), application.UpdateProductRequest{}).StatusCode)
}

func TestUpdateStock(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	p := create(t, s, "Lamp", 3)

	res := s.UpdateStock(ctx, p.ID, 40)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 40, res.Data.StockQuantity)

	neg := s.UpdateStock(ctx, p.ID, -1)
	assert.Equal(t, http.StatusBadRequest, neg.StatusCode)
	assert.Equal(t, 40, s.Get(ctx, p.ID).Data.StockQuantity)
}

func TestUpdateStockRetriesTransientFailure(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()
	p := create(t, s, "Lamp", 3)

	store.FailCommits(1)
	res := s.UpdateStock(ctx, p.ID, 9)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 9, s.Get(ctx, p.ID).Data.StockQuantity)
}
