package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const orderColumns = `id::text, order_number, cart_id::text, customer_email, customer_name, COALESCE(customer_phone, ''),
shipping_address, billing_address, subtotal_cents, tax_cents, shipping_cents, total_cents,
status, payment_status, COALESCE(payment_reference, ''), COALESCE(notes, ''),
created_at, updated_at, shipped_at, delivered_at`

func (r *postgresRepo) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var cartID *string
	if in.CartID != "" {
		cartID = &in.CartID
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
INSERT INTO orders (
    order_number, cart_id, customer_email, customer_name, customer_phone,
    shipping_address, billing_address,
    subtotal_cents, tax_cents, shipping_cents, total_cents,
    status, payment_status, notes
)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, 'pending', 'pending', NULLIF($12, ''))
RETURNING `+orderColumns,
		in.OrderNumber, cartID, in.Contact.Email, in.Contact.Name, in.Contact.Phone,
		in.ShippingAddress, in.BillingAddress,
		int64(in.Subtotal), int64(in.Tax), int64(in.ShippingCost), int64(in.TotalAmount),
		in.Notes,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("order repo: insert order", zap.String("order_number", in.OrderNumber), zap.Error(err))
		return nil, err
	}

	order.Items = make([]domain.OrderItem, 0, len(in.Lines))
	for i, line := range in.Lines {
		item, err := scanItem(tx.QueryRow(ctx, `
INSERT INTO order_items (order_id, line_no, product_id, product_name, product_slug, quantity, price_at_purchase, subtotal_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id::text, order_id::text, product_id, product_name, product_slug, quantity, price_at_purchase, subtotal_cents, created_at
`, order.ID, i+1, line.ProductID, line.ProductName, line.ProductSlug, line.Quantity, int64(line.PriceAtPurchase), int64(line.Subtotal())))
		if err != nil {
			r.logger.Error("order repo: insert item", zap.String("order_number", in.OrderNumber), zap.String("product_id", line.ProductID), zap.Error(err))
			return nil, err
		}
		order.Items = append(order.Items, *item)
	}

	if cartID != nil {
		cmd, err := tx.Exec(ctx, `
UPDATE carts
SET status = 'converted', updated_at = now()
WHERE id = $1 AND status = 'active'
`, *cartID)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, domain.ErrCartNotActive
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("order repo: commit", zap.String("order_number", in.OrderNumber), zap.Error(err))
		return nil, err
	}
	r.logger.Info("order repo: created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(order.Items)),
		zap.Stringer("total", order.TotalAmount),
	)
	return order, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("order repo: get", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id, status string, at time.Time) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `
UPDATE orders
SET status = $2,
    updated_at = $3,
    shipped_at = CASE WHEN $2 = 'shipped' AND shipped_at IS NULL THEN $3 ELSE shipped_at END,
    delivered_at = CASE WHEN $2 = 'delivered' AND delivered_at IS NULL THEN $3 ELSE delivered_at END
WHERE id = $1
RETURNING `+orderColumns, id, status, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("order repo: update status", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *postgresRepo) UpdatePayment(ctx context.Context, id, paymentStatus string, reference *string) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `
UPDATE orders
SET payment_status = $2,
    payment_reference = COALESCE($3, payment_reference),
    updated_at = now()
WHERE id = $1
RETURNING `+orderColumns, id, paymentStatus, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("order repo: update payment", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *postgresRepo) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, order_id::text, product_id, product_name, product_slug, quantity, price_at_purchase, subtotal_cents, created_at
FROM order_items
WHERE order_id = $1
ORDER BY line_no ASC, id ASC
`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, *item)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                   domain.Order
		subtotal, tax, shipping, totalCents int64
	)
	if err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CartID, &o.CustomerEmail, &o.CustomerName, &o.CustomerPhone,
		&o.ShippingAddress, &o.BillingAddress, &subtotal, &tax, &shipping, &totalCents,
		&o.Status, &o.PaymentStatus, &o.PaymentReference, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt,
	); err != nil {
		return nil, err
	}
	o.Subtotal = domain.Money(subtotal)
	o.Tax = domain.Money(tax)
	o.ShippingCost = domain.Money(shipping)
	o.TotalAmount = domain.Money(totalCents)
	return &o, nil
}

func scanItem(row pgx.Row) (*domain.OrderItem, error) {
	var (
		it              domain.OrderItem
		price, subtotal int64
	)
	if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductSlug, &it.Quantity, &price, &subtotal, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.PriceAtPurchase = domain.Money(price)
	it.Subtotal = domain.Money(subtotal)
	return &it, nil
}
