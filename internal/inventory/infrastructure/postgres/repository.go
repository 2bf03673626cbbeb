package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/catalog-checkout/internal/inventory/domain"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/pkg/pgerr"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
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

var _ storage.ProductRepository = (*Repository)(nil)

const productColumns = `id, name, description, price::text, stock_quantity, is_active, is_deleted, version, created_at, updated_at`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND NOT is_deleted`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return p, err
}

func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[]) AND NOT is_deleted ORDER BY name, id`, keys)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repository) List(ctx context.Context, page storage.PageRequest, includeInactive bool) ([]*domain.Product, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM products WHERE NOT is_deleted AND ($1 OR is_active)`, includeInactive).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE NOT is_deleted AND ($1 OR is_active)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, includeInactive, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	products, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *Repository) Add(ctx context.Context, p *domain.Product) error {
	s := p.Snapshot()
	s.Version = 1
	_, err := r.db.Exec(ctx, `INSERT INTO products (id, name, description, price, stock_quantity, is_active, is_deleted, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.Name, s.Description, s.Price.String(), s.Stock, s.Active, s.Deleted, s.Version, s.CreatedAt, updatedAt(s))
	if pgerr.IsUniqueViolation(err) {
		return storage.ErrConcurrencyConflict
	}
	if err != nil {
		return err
	}
	*p = *domain.HydrateProduct(s)
	return nil
}

// Save is a compare-and-swap on version. Under READ COMMITTED a concurrent
// writer blocks on the row lock and then sees the bumped version, so exactly
// one of two racing saves wins.
func (r *Repository) Save(ctx context.Context, p *domain.Product) error {
	s := p.Snapshot()
	ct, err := r.db.Exec(ctx, `UPDATE products
		SET name=$2, description=$3, price=$4::numeric, stock_quantity=$5, is_active=$6, is_deleted=$7, updated_at=$8, version=version+1
		WHERE id=$1 AND version=$9`,
		s.ID, s.Name, s.Description, s.Price.String(), s.Stock, s.Active, s.Deleted, updatedAt(s), s.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		r.log.Debug("product version mismatch", "product_id", s.ID, "version", s.Version)
		return storage.ErrConcurrencyConflict
	}
	s.Version++
	*p = *domain.HydrateProduct(s)
	return nil
}

func (r *Repository) Remove(ctx context.Context, p *domain.Product) error {
	p.MarkDeleted()
	return r.Save(ctx, p)
}

func collect(rows pgx.Rows) ([]*domain.Product, error) {
	defer rows.Close()
	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var s domain.ProductSnapshot
	var price string
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &price, &s.Stock, &s.Active, &s.Deleted, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price %q: %w", s.ID, price, err)
	}
	s.Price = amount
	return domain.HydrateProduct(s), nil
}

func updatedAt(s domain.ProductSnapshot) any {
	if s.UpdatedAt.IsZero() {
		return s.CreatedAt
	}
	return s.UpdatedAt
}
