package cart

import (
	"context"
	"errors"
	"time"

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

const cartColumns = `id::text, owner_ref, status, created_at, updated_at, expires_at`

const itemColumns = `id::text, cart_id::text, product_id, quantity, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error) {
	const q = `
INSERT INTO carts (owner_ref, status, expires_at)
VALUES ($1, 'active', $2)
RETURNING ` + cartColumns
	cart, err := scanCart(r.pool.QueryRow(ctx, q, in.OwnerRef, in.ExpiresAt))
	if err != nil {
		r.logger.Error("cart repo: create", zap.Error(err))
		return nil, err
	}
	cart.Items = []domain.CartItem{}
	r.logger.Debug("cart repo: created", zap.String("cart_id", cart.ID))
	return cart, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	q := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	cart, err := scanCart(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("cart repo: get", zap.String("cart_id", id), zap.Error(err))
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+itemColumns+`
FROM cart_items
WHERE cart_id = $1
ORDER BY created_at ASC, id ASC
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *postgresRepo) AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.CartItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The conditional SELECT keeps the insert from touching inactive or
	// unknown carts; ON CONFLICT turns a repeat add into an in-place increment.
	item, err := scanItem(tx.QueryRow(ctx, `
INSERT INTO cart_items (cart_id, product_id, quantity)
SELECT c.id, $2::text, $3::int
FROM carts c
WHERE c.id = $1 AND c.status = 'active'
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = cart_items.quantity + EXCLUDED.quantity,
    updated_at = now()
RETURNING `+itemColumns, cartID, productID, quantity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cartStateError(ctx, tx, cartID)
		}
		r.logger.Error("cart repo: add item", zap.String("cart_id", cartID), zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *postgresRepo) SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.CartItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := requireActive(ctx, tx, cartID); err != nil {
		return nil, err
	}

	item, err := scanItem(tx.QueryRow(ctx, `
UPDATE cart_items
SET quantity = $3, updated_at = now()
WHERE cart_id = $1 AND id::text = $2
RETURNING `+itemColumns, cartID, itemID, quantity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *postgresRepo) RemoveItem(ctx context.Context, cartID, itemID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := requireActive(ctx, tx, cartID); err != nil {
		return err
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id::text = $2`, cartID, itemID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		if err := touchCart(ctx, tx, cartID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) Clear(ctx context.Context, cartID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := requireActive(ctx, tx, cartID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return err
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.Debug("cart repo: cleared", zap.String("cart_id", cartID), zap.Int64("removed", cmd.RowsAffected()))
	return nil
}

func (r *postgresRepo) AbandonExpired(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE carts
SET status = 'abandoned', updated_at = $1
WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
`, now)
	if err != nil {
		r.logger.Error("cart repo: abandon expired", zap.Error(err))
		return 0, err
	}
	r.logger.Info("cart repo: abandoned expired carts", zap.Int64("count", cmd.RowsAffected()))
	return cmd.RowsAffected(), nil
}

func requireActive(ctx context.Context, tx pgx.Tx, cartID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM carts WHERE id = $1`, cartID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if status != domain.CartStatusActive {
		return domain.ErrCartNotActive
	}
	return nil
}

// cartStateError explains why a conditional write against cartID hit no rows.
func cartStateError(ctx context.Context, tx pgx.Tx, cartID string) error {
	if err := requireActive(ctx, tx, cartID); err != nil {
		return err
	}
	return domain.ErrNotFound
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	return err
}

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var c domain.Cart
	if err := row.Scan(&c.ID, &c.OwnerRef, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanItem(row pgx.Row) (*domain.CartItem, error) {
	var it domain.CartItem
	if err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}
