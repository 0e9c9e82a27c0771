// Package order turns carts into persisted orders and applies later
// fulfilment and payment updates.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/pricing"
	cartrepo "storefront/internal/repository/cart"
	orderrepo "storefront/internal/repository/order"
)

// Policy decides what happens to cart lines whose product the catalog can no
// longer resolve.
type Policy string

const (
	// PolicyDrop omits unresolvable lines and logs each one.
	PolicyDrop Policy = "drop"
	// PolicyReject fails the checkout with domain.ErrUnresolvableItems.
	PolicyReject Policy = "reject"
)

const maxNumberAttempts = 5

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown unresolvable line policy %q", raw)
}

type cartReader interface {
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
}

type Writer struct {
	carts   cartReader
	orders  orderrepo.Repository
	catalog catalog.Reader
	calc    pricing.Calculator
	policy  Policy
	now     func() time.Time
	numbers func(time.Time) (string, error)
	logger  *zap.Logger
}

type Config struct {
	Pricing pricing.Calculator
	Policy  Policy
}

func NewWriter(carts cartrepo.Repository, orders orderrepo.Repository, reader catalog.Reader, cfg Config, logger *zap.Logger) *Writer {
	logger = logging.OrNop(logger)
	if cfg.Policy == "" {
		cfg.Policy = PolicyDrop
	}
	return &Writer{
		carts:   carts,
		orders:  orders,
		catalog: catalog.Guard(reader),
		calc:    cfg.Pricing,
		policy:  cfg.Policy,
		now:     func() time.Time { return time.Now().UTC() },
		numbers: NewOrderNumber,
		logger:  logger,
	}
}

type CreateInput struct {
	CartID          string
	Contact         domain.Contact
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	Notes           string
}

// CreateOrder prices the cart against the catalog and persists the order.
// On any error the cart is left active and unchanged.
func (w *Writer) CreateOrder(ctx context.Context, in CreateInput) (*domain.Order, error) {
	if !validID(in.CartID) {
		return nil, domain.ErrNotFound
	}
	cart, err := w.carts.GetByID(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if !cart.IsActive() {
		return nil, domain.ErrCartNotActive
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	lines, err := w.resolve(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	priced := make([]pricing.Line, len(lines))
	for i, l := range lines {
		priced[i] = pricing.Line{CatalogPrice: l.PriceAtPurchase, Quantity: l.Quantity}
	}
	totals := w.calc.ComputeTotals(priced)

	input := orderrepo.CreateOrderInput{
		CartID:          cart.ID,
		Contact:         in.Contact,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.Shipping,
		TotalAmount:     totals.Total,
		Notes:           in.Notes,
		Lines:           lines,
	}
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := w.numbers(w.now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreationFailed, err)
		}
		input.OrderNumber = number

		order, err := w.orders.Create(ctx, input)
		switch {
		case err == nil:
			return order, nil
		case errors.Is(err, domain.ErrAlreadyExists):
			w.logger.Warn("order number collision", zap.String("order_number", number), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, domain.ErrCartNotActive):
			return nil, err
		default:
			w.logger.Error("persist order", zap.String("cart_id", cart.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreationFailed, err)
		}
	}
	return nil, fmt.Errorf("%w: no unique order number after %d attempts", domain.ErrOrderCreationFailed, maxNumberAttempts)
}

// resolve snapshots every cart line against the current catalog in one batch
// lookup. Lines come back in cart order.
func (w *Writer) resolve(ctx context.Context, cart *domain.Cart) ([]orderrepo.LineInput, error) {
	ids := make([]string, 0, len(cart.Items))
	seen := make(map[string]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := w.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]orderrepo.LineInput, 0, len(cart.Items))
	var missing []string
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		p, ok := byID[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		lines = append(lines, orderrepo.LineInput{
			ProductID:       p.ID,
			ProductName:     p.Name,
			ProductSlug:     p.Slug,
			Quantity:        item.Quantity,
			PriceAtPurchase: p.EffectivePrice(),
		})
	}

	if len(missing) > 0 {
		if w.policy == PolicyReject {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnresolvableItems, strings.Join(missing, ", "))
		}
		for _, id := range missing {
			w.logger.Warn("dropping unresolvable cart line", zap.String("cart_id", cart.ID), zap.String("product_id", id))
		}
	}
	return lines, nil
}
