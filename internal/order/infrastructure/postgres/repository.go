package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/catalog-checkout/internal/order/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/pgerr"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx opens
// a savepoint, so writes nest correctly inside a caller's transaction.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	log *slog.Logger
	db  DBTX
}

func NewRepository(log *slog.Logger, db DBTX) *Repository {
	return &Repository{log: log, db: db}
}

var _ storage.OrderRepository = (*Repository)(nil)

const orderColumns = `id, order_number, customer_email, status, created_at, updated_at, processed_at, version`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var s domain.OrderSnapshot
	err := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id).
		Scan(&s.ID, &s.Number, &s.CustomerEmail, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.ProcessedAt, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	s.Items = items[id]
	return domain.HydrateOrder(s), nil
}

func (r *Repository) List(ctx context.Context, page storage.PageRequest, filter storage.OrderFilter) ([]*domain.Order, int, error) {
	page = page.Normalize()

	var (
		conds []string
		args  []any
	)
	if email := domain.NormalizeEmail(filter.CustomerEmail); email != "" {
		args = append(args, email)
		conds = append(conds, fmt.Sprintf("customer_email=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		snaps []domain.OrderSnapshot
		ids   []uuid.UUID
	)
	for rows.Next() {
		var s domain.OrderSnapshot
		if err := rows.Scan(&s.ID, &s.Number, &s.CustomerEmail, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.ProcessedAt, &s.Version); err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*domain.Order, 0, len(snaps))
	for _, s := range snaps {
		s.Items = items[s.ID]
		out = append(out, domain.HydrateOrder(s))
	}
	return out, total, nil
}

func (r *Repository) Add(ctx context.Context, o *domain.Order, events ...outbox.Event) error {
	s := o.Snapshot()
	s.Version = 1
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, order_number, customer_email, status, total_amount, created_at, updated_at, processed_at, version)
			VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9)`,
			s.ID, s.Number, s.CustomerEmail, string(s.Status), s.TotalAmount.String(), s.CreatedAt, s.UpdatedAt, s.ProcessedAt, s.Version)
		if pgerr.IsUniqueViolation(err) {
			return storage.ErrConcurrencyConflict
		}
		if err != nil {
			return err
		}
		if err := writeItems(ctx, tx, s); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	*o = *domain.HydrateOrder(s)
	return nil
}

func (r *Repository) Save(ctx context.Context, o *domain.Order, events ...outbox.Event) error {
	s := o.Snapshot()
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE orders
			SET customer_email=$2, status=$3, total_amount=$4::numeric, updated_at=$5, processed_at=$6, version=version+1
			WHERE id=$1 AND version=$7`,
			s.ID, s.CustomerEmail, string(s.Status), s.TotalAmount.String(), s.UpdatedAt, s.ProcessedAt, s.Version)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			r.log.Debug("order version mismatch", "order_id", s.ID, "version", s.Version)
			return storage.ErrConcurrencyConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, s.ID); err != nil {
			return err
		}
		if err := writeItems(ctx, tx, s); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	s.Version++
	*o = *domain.HydrateOrder(s)
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func writeItems(ctx context.Context, tx pgx.Tx, s domain.OrderSnapshot) error {
	if len(s.Items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, it := range s.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, position, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9)`,
			it.ID, s.ID, it.ProductID, it.ProductName, it.UnitPrice.String(), it.Quantity, i, it.CreatedAt, it.UpdatedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	for _, e := range events {
		_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,'pending',$7)`,
			e.AggregateType, e.AggregateID, e.Type, e.Payload, e.Headers, e.Traceparent, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox %s: %w", e.Type, err)
		}
	}
	return nil
}

func (r *Repository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.ItemSnapshot, error) {
	out := make(map[uuid.UUID][]domain.ItemSnapshot, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		keys = append(keys, id.String())
	}
	rows, err := r.db.Query(ctx, `SELECT order_id, id, product_id, product_name, unit_price::text, quantity, created_at, updated_at
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID uuid.UUID
			it      domain.ItemSnapshot
			price   string
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &price, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order item %s price %q: %w", it.ID, price, err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}
