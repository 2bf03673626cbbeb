//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryapp "github.com/dmehra2102/catalog-checkout/internal/inventory/application"
	"github.com/dmehra2102/catalog-checkout/internal/order/application"
	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	orderkafka "github.com/dmehra2102/catalog-checkout/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/internal/storage/postgres"
	"github.com/dmehra2102/catalog-checkout/pkg/idempotency"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
)

var env *Env

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration setup:", err)
		os.Exit(1)
	}
	code := m.Run()
	env.Teardown(ctx)
	os.Exit(code)
}

type stack struct {
	pool     *pgxpool.Pool
	gw       *postgres.Gateway
	orders   *application.Coordinator
	products *inventoryapp.Service
}

func newStack(t *testing.T) stack {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	log := logging.Discard()
	gw := postgres.NewGateway(log, pool)
	strategy := retry.NewStrategy(retry.DefaultPolicy(), gw.IsTransient, log)
	return stack{
		pool:     pool,
		gw:       gw,
		orders:   application.NewCoordinator(log, gw, strategy, nil),
		products: inventoryapp.NewService(log, gw, strategy, nil),
	}
}

func (s stack) product(t *testing.T, name string, stock int) inventoryapp.ProductView {
	t.Helper()
	res := s.products.Create(context.Background(), inventoryapp.CreateProductRequest{
		Name:          name,
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: stock,
	})
	require.True(t, res.Success, res.Message)
	return res.Data
}

func (s stack) stock(t *testing.T, p inventoryapp.ProductView) int {
	t.Helper()
	res := s.products.Get(context.Background(), p.ID)
	require.True(t, res.Success, res.Message)
	return res.Data.StockQuantity
}

func TestCreateOrderReservesStock(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	a := s.product(t, "pg-widget-a", 10)
	b := s.product(t, "pg-widget-b", 4)

	res := s.orders.CreateOrder(ctx, application.CreateOrderRequest{
		CustomerEmail: "Buyer@Example.com",
		Items: []application.ItemRequest{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: b.ID, Quantity: 4},
		},
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "buyer@example.com", res.Data.CustomerEmail)
	assert.True(t, decimal.RequireFromString("87.50").Equal(res.Data.TotalAmount))
	assert.Equal(t, 7, s.stock(t, a))
	assert.Equal(t, 0, s.stock(t, b))

	got := s.orders.GetOrder(ctx, res.Data.ID)
	require.True(t, got.Success)
	assert.Len(t, got.Data.Items, 2)
	assert.Equal(t, a.ID, got.Data.Items[0].ProductID)
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	s := newStack(t)
	a := s.product(t, "pg-atomic-a", 10)
	b := s.product(t, "pg-atomic-b", 1)

	res := s.orders.CreateOrder(context.Background(), application.CreateOrderRequest{
		CustomerEmail: "buyer@example.com",
		Items: []application.ItemRequest{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: b.ID, Quantity: 5},
		},
	})
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, 10, s.stock(t, a))
	assert.Equal(t, 1, s.stock(t, b))
}

func TestStaleProductSaveConflicts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.product(t, "pg-stale", 5)

	first, err := s.gw.Products().Get(ctx, p.ID)
	require.NoError(t, err)
	second, err := s.gw.Products().Get(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, first.Reserve(1))
	require.NoError(t, s.gw.Products().Save(ctx, first))
	assert.Equal(t, second.Version()+1, first.Version())

	require.NoError(t, second.Reserve(2))
	err = s.gw.Products().Save(ctx, second)
	assert.ErrorIs(t, err, storage.ErrConcurrencyConflict)
	assert.Equal(t, 4, s.stock(t, p))
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	s := newStack(t)
	p := s.product(t, "pg-last-unit", 1)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := s.orders.CreateOrder(context.Background(), application.CreateOrderRequest{
				CustomerEmail: fmt.Sprintf("racer%d@example.com", i),
				Items:         []application.ItemRequest{{ProductID: p.ID, Quantity: 1}},
			})
			mu.Lock()
			statuses = append(statuses, res.StatusCode)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range statuses {
		if code == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, code)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, s.stock(t, p))
}

func TestCancelConfirmedOrderRestoresStock(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	a := s.product(t, "pg-cancel-a", 10)
	b := s.product(t, "pg-cancel-b", 10)

	created := s.orders.CreateOrder(ctx, application.CreateOrderRequest{
		CustomerEmail: "buyer@example.com",
		Items: []application.ItemRequest{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 1},
		},
	})
	require.True(t, created.Success, created.Message)
	require.True(t, s.orders.ConfirmOrder(ctx, created.Data.ID).Success)

	require.True(t, s.products.UpdateStock(ctx, a.ID, 50).Success)

	res := s.orders.CancelOrder(ctx, created.Data.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.StatusCancelled, res.Data.Status)
	assert.Equal(t, 52, s.stock(t, a))
	assert.Equal(t, 10, s.stock(t, b))
}

func TestOutboxRelayPublishesOrderEvents(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.product(t, "pg-relay", 3)
	topic := fmt.Sprintf("catalog.events.%d", time.Now().UnixNano())

	created := s.orders.CreateOrder(ctx, application.CreateOrderRequest{
		CustomerEmail: "relay@example.com",
		Items:         []application.ItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.True(t, created.Success, created.Message)

	createTopic(t, topic)

	writer := orderkafka.NewWriter(env.KAddr)
	defer writer.Close()
	log := logging.Discard()
	relay := outbox.NewRelay(log, s.gw.Outbox(), outbox.NewDispatcher(log, writer, topic), "relay-test")

	sent, err := relay.Drain(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sent, 2)

	reader := kafkago.NewReader(kafkago.ReaderConfig{Brokers: env.KAddr, Topic: topic, MaxWait: time.Second})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	seen := map[string]bool{}
	for !seen[domain.EventOrderCreated] {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err)
		for _, h := range msg.Headers {
			if h.Key == "event_type" && string(msg.Key) == created.Data.ID.String() {
				seen[string(h.Value)] = true
			}
		}
	}
	assert.True(t, seen[domain.EventOrderCreated])
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	opts, err := redis.ParseURL(env.RedisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	store := idempotency.NewRedisStore(rdb, time.Minute)
	key := idempotency.Key(http.MethodPost, "/orders", fmt.Sprint(time.Now().UnixNano()))

	resp, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp)

	claimed, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = store.Lookup(ctx, key)
	assert.True(t, errors.Is(err, idempotency.ErrInFlight))

	require.NoError(t, store.Save(ctx, key, idempotency.Response{Status: http.StatusCreated, ContentType: "application/json", Body: []byte(`{"ok":true}`)}))
	resp, err = store.Lookup(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func createTopic(t *testing.T, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", env.KAddr[0])
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}
