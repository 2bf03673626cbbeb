// Package postgres implements storage.Gateway on a pgx pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	inventorypg "github.com/dmehra2102/catalog-checkout/internal/inventory/infrastructure/postgres"
	orderpg "github.com/dmehra2102/catalog-checkout/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/pgerr"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

type Gateway struct {
	log      *slog.Logger
	pool     *pgxpool.Pool
	products *inventorypg.Repository
	orders   *orderpg.Repository
	outbox   *orderpg.OutboxStore
}

func NewGateway(log *slog.Logger, pool *pgxpool.Pool) *Gateway {
	return &Gateway{
		log:      log,
		pool:     pool,
		products: inventorypg.NewRepository(log, pool),
		orders:   orderpg.NewRepository(log, pool),
		outbox:   orderpg.NewOutboxStore(log, pool),
	}
}

var _ storage.Gateway = (*Gateway)(nil)

func (g *Gateway) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx:       tx,
		products: inventorypg.NewRepository(g.log, tx),
		orders:   orderpg.NewRepository(g.log, tx),
	}, nil
}

func (g *Gateway) Products() storage.ProductRepository { return g.products }
func (g *Gateway) Orders() storage.OrderRepository     { return g.orders }
func (g *Gateway) Outbox() *orderpg.OutboxStore         { return g.outbox }

func (g *Gateway) IsTransient(err error) bool { return pgerr.IsTransient(err) }

func (g *Gateway) Ping(ctx context.Context) error { return g.pool.Ping(ctx) }

type Tx struct {
	tx       pgx.Tx
	products *inventorypg.Repository
	orders   *orderpg.Repository
}

func (t *Tx) Products() storage.ProductRepository { return t.products }
func (t *Tx) Orders() storage.OrderRepository     { return t.orders }

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
