package cart

import (
	"context"
	"time"

	"storefront/internal/domain"
)

type CreateCartInput struct {
	OwnerRef  *string
	ExpiresAt *time.Time
}

// Repository persists carts and their items. Item mutations fail with
// domain.ErrNotFound for unknown carts and domain.ErrCartNotActive once the
// cart has left the active state.
type Repository interface {
	Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error)
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
	// AddItem increments the quantity of an existing (cart, product) line in a
	// single statement, or inserts a new line.
	AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.CartItem, error)
	SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, cartID, itemID string) error
	Clear(ctx context.Context, cartID string) error
	AbandonExpired(ctx context.Context, now time.Time) (int64, error)
}
