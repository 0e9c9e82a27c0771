package order

import (
	"context"
	"time"

	"storefront/internal/domain"
)

// LineInput is one frozen order line.
type LineInput struct {
	ProductID       string
	ProductName     string
	ProductSlug     string
	Quantity        int
	PriceAtPurchase domain.Money
}

func (l LineInput) Subtotal() domain.Money {
	return l.PriceAtPurchase * domain.Money(l.Quantity)
}

type CreateOrderInput struct {
	OrderNumber     string
	CartID          string
	Contact         domain.Contact
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	Subtotal        domain.Money
	Tax             domain.Money
	ShippingCost    domain.Money
	TotalAmount     domain.Money
	Notes           string
	Lines           []LineInput
}

// Repository persists orders. Create writes the order, its items and the
// active -> converted transition of the source cart as one unit: it either
// fully succeeds or leaves no trace.
type Repository interface {
	// Create returns domain.ErrAlreadyExists when OrderNumber collides and
	// domain.ErrCartNotActive when the cart was converted concurrently.
	Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id, status string, at time.Time) (*domain.Order, error)
	UpdatePayment(ctx context.Context, id, paymentStatus string, reference *string) (*domain.Order, error)
}
