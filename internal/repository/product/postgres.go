package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

const productColumns = `id::text, slug, name, COALESCE(description, ''), price_cents, sale_price_cents, in_stock, images, created_at`

func (r *postgresRepo) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name ASC`)
	if err != nil {
		r.logger.Error("product repo: list", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	result, err := collect(rows)
	if err != nil {
		r.logger.Error("product repo: list rows", zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product repo: list", zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("product repo: get not found", zap.String("product_id", id))
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// GetByIDs returns the products that exist among ids in one round-trip.
// Unknown or malformed ids are silently absent from the result.
func (r *postgresRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []domain.Product{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		r.logger.Error("product repo: get by ids", zap.Int("ids", len(valid)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, slug, name, description, price_cents, sale_price_cents, in_stock, images)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, NULLIF($4, ''), $5, $6, $7, COALESCE($8, '[]'::jsonb))
ON CONFLICT (slug) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price_cents = EXCLUDED.price_cents,
    sale_price_cents = EXCLUDED.sale_price_cents,
    in_stock = EXCLUDED.in_stock,
    images = EXCLUDED.images
RETURNING ` + productColumns

	var sale *int64
	if product.SalePrice != nil {
		v := int64(*product.SalePrice)
		sale = &v
	}
	images := product.Images
	if images == nil {
		images = []string{}
	}

	res, err := scanProduct(r.pool.QueryRow(ctx, q,
		product.ID,
		product.Slug,
		product.Name,
		product.Description,
		int64(product.Price),
		sale,
		product.InStock,
		images,
	))
	if err != nil {
		r.logger.Error("product repo: upsert", zap.String("slug", product.Slug), zap.Error(err))
		return nil, err
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for slug=%s existing_id=%s import_id=%s", product.Slug, res.ID, product.ID)
	}
	r.logger.Debug("product repo: upserted", zap.String("slug", res.Slug), zap.String("product_id", res.ID))
	return res, nil
}

func collect(rows pgx.Rows) ([]domain.Product, error) {
	result := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price int64
		sale  *int64
	)
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &price, &sale, &p.InStock, &p.Images, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Price = domain.Money(price)
	if sale != nil {
		s := domain.Money(*sale)
		p.SalePrice = &s
	}
	return &p, nil
}
