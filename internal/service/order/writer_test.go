package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/pricing"
	cartrepo "storefront/internal/repository/cart"
	"storefront/internal/repository/memory"
)

const (
	productA = "prod-a"
	productB = "prod-b"
)

type fixture struct {
	store   *memory.Store
	catalog *memory.Catalog
	carts   cartrepo.Repository
	writer  *Writer
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	store := memory.NewStore()
	cat := memory.NewCatalog(
		domain.Product{ID: productA, Slug: "tallow-balm", Name: "Tallow Balm", Price: 2000, InStock: true},
		domain.Product{ID: productB, Slug: "lip-balm", Name: "Lip Balm", Price: 1500, InStock: true},
	)
	carts := store.Carts()
	w := NewWriter(carts, store.Orders(), cat, Config{Pricing: pricing.Default(), Policy: policy}, nil)
	return &fixture{store: store, catalog: cat, carts: carts, writer: w}
}

func (f *fixture) cartWith(t *testing.T, lines map[string]int) string {
	t.Helper()
	ctx := context.Background()
	cart, err := f.carts.Create(ctx, cartrepo.CreateCartInput{})
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	for id, qty := range lines {
		if _, err := f.carts.AddItem(ctx, cart.ID, id, qty); err != nil {
			t.Fatalf("add item: %v", err)
		}
	}
	return cart.ID
}

func checkoutInput(cartID string) CreateInput {
	addr := domain.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}
	return CreateInput{
		CartID:          cartID,
		Contact:         domain.Contact{Email: "buyer@example.com", Name: "Buyer"},
		ShippingAddress: addr,
		BillingAddress:  addr,
	}
}

func (f *fixture) cartStatus(t *testing.T, id string) string {
	t.Helper()
	cart, err := f.carts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	return cart.Status
}

func TestCreateOrder_ComputesAuthoritativeTotals(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 2, productB: 1})

	order, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Subtotal != 5500 || order.Tax != 550 || order.ShippingCost != 0 || order.TotalAmount != 6050 {
		t.Fatalf("unexpected totals %s %s %s %s", order.Subtotal, order.Tax, order.ShippingCost, order.TotalAmount)
	}
	var sum domain.Money
	for _, item := range order.Items {
		if item.Subtotal != item.PriceAtPurchase*domain.Money(item.Quantity) {
			t.Fatalf("line subtotal mismatch %+v", item)
		}
		sum += item.Subtotal
	}
	if sum+order.Tax+order.ShippingCost != order.TotalAmount {
		t.Fatalf("order does not balance")
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if !regexp.MustCompile(`^SV-\d{8}-[0-9A-Z]{8}$`).MatchString(order.OrderNumber) {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if got := f.cartStatus(t, cartID); got != domain.CartStatusConverted {
		t.Fatalf("expected converted cart, got %s", got)
	}
}

func TestCreateOrder_UsesSalePrice(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	sale := domain.Money(1200)
	f.catalog.Put(domain.Product{ID: productA, Slug: "tallow-balm", Name: "Tallow Balm", Price: 2000, SalePrice: &sale})
	cartID := f.cartWith(t, map[string]int{productA: 1})

	order, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Items[0].PriceAtPurchase != 1200 || order.ShippingCost != 1000 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestCreateOrder_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1})
	ctx := context.Background()

	created, err := f.writer.CreateOrder(ctx, checkoutInput(cartID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	f.catalog.SetPrice(productA, 9900)

	reloaded, err := f.store.Orders().GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Items[0].PriceAtPurchase != 2000 || reloaded.TotalAmount != created.TotalAmount {
		t.Fatalf("snapshot changed: %+v", reloaded.Items[0])
	}
}

func TestCreateOrder_ImmutableAfterCartMutation(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1})
	ctx := context.Background()

	created, err := f.writer.CreateOrder(ctx, checkoutInput(cartID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	cart, _ := f.carts.GetByID(ctx, cartID)
	_ = f.carts.RemoveItem(ctx, cartID, cart.Items[0].ID)
	_ = f.carts.Clear(ctx, cartID)

	reloaded, err := f.store.Orders().GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Items) != 1 || reloaded.Items[0].Quantity != 1 || reloaded.Subtotal != created.Subtotal {
		t.Fatalf("order changed after cart mutation: %+v", reloaded)
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, nil)

	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	if f.store.OrderCount() != 0 {
		t.Fatalf("expected no order rows")
	}
	if got := f.cartStatus(t, cartID); got != domain.CartStatusActive {
		t.Fatalf("expected active cart, got %s", got)
	}
}

func TestCreateOrder_AllUnresolvableIsEmpty(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{"ghost": 2})

	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	if f.store.OrderCount() != 0 {
		t.Fatalf("expected no order rows")
	}
}

func TestCreateOrder_DropPolicyOmitsMissingLines(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1, "ghost": 4})

	order, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != productA || order.Subtotal != 2000 {
		t.Fatalf("expected only resolvable line, got %+v", order.Items)
	}
}

func TestCreateOrder_RejectPolicy(t *testing.T) {
	f := newFixture(t, PolicyReject)
	cartID := f.cartWith(t, map[string]int{productA: 1, "ghost": 4})

	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrUnresolvableItems) {
		t.Fatalf("expected unresolvable items, got %v", err)
	}
	if f.store.OrderCount() != 0 || f.cartStatus(t, cartID) != domain.CartStatusActive {
		t.Fatalf("rejected checkout must leave no trace")
	}
}

func TestCreateOrder_CatalogFailureLeavesCartActive(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1})
	f.catalog.SetError(errors.New("connection reset"))

	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("expected catalog unavailable, got %v", err)
	}
	if f.store.OrderCount() != 0 || f.cartStatus(t, cartID) != domain.CartStatusActive {
		t.Fatalf("catalog failure must leave cart active and no order")
	}
}

func TestCreateOrder_PersistenceFailure(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1})
	f.store.FailNextOrderCreate(errors.New("disk full"))

	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("expected order creation failed, got %v", err)
	}
	if got := f.cartStatus(t, cartID); got != domain.CartStatusActive {
		t.Fatalf("expected active cart, got %s", got)
	}

	// the same checkout succeeds on retry
	if _, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCreateOrder_RetriesOnNumberCollision(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	first := f.cartWith(t, map[string]int{productA: 1})
	second := f.cartWith(t, map[string]int{productB: 1})

	calls := 0
	f.writer.numbers = func(time.Time) (string, error) {
		calls++
		if calls <= 2 {
			return "SV-20260101-AAAAAAAA", nil
		}
		return fmt.Sprintf("SV-20260101-%08d", calls), nil
	}

	if _, err := f.writer.CreateOrder(context.Background(), checkoutInput(first)); err != nil {
		t.Fatalf("first order: %v", err)
	}
	order, err := f.writer.CreateOrder(context.Background(), checkoutInput(second))
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if order.OrderNumber != "SV-20260101-00000003" {
		t.Fatalf("expected regenerated number, got %s", order.OrderNumber)
	}
}

func TestCreateOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	first := f.cartWith(t, map[string]int{productA: 1})
	second := f.cartWith(t, map[string]int{productB: 1})
	f.writer.numbers = func(time.Time) (string, error) { return "SV-20260101-SAMESAME", nil }

	if _, err := f.writer.CreateOrder(context.Background(), checkoutInput(first)); err != nil {
		t.Fatalf("first order: %v", err)
	}
	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(second))
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("expected order creation failed, got %v", err)
	}
	if got := f.cartStatus(t, second); got != domain.CartStatusActive {
		t.Fatalf("expected active cart, got %s", got)
	}
}

func TestCreateOrder_ConvertedCartRejected(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	cartID := f.cartWith(t, map[string]int{productA: 1})
	if _, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID)); err != nil {
		t.Fatalf("create order: %v", err)
	}
	_, err := f.writer.CreateOrder(context.Background(), checkoutInput(cartID))
	if !errors.Is(err, domain.ErrCartNotActive) {
		t.Fatalf("expected cart not active, got %v", err)
	}
	if f.store.OrderCount() != 1 {
		t.Fatalf("expected a single order, got %d", f.store.OrderCount())
	}
}

func TestCreateOrder_UnknownCart(t *testing.T) {
	f := newFixture(t, PolicyDrop)
	_, err := f.writer.CreateOrder(context.Background(), checkoutInput("8f14e45f-ceea-467a-9af0-2b1c6f7e0d11"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.writer.CreateOrder(context.Background(), checkoutInput("junk")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyDrop, "drop": PolicyDrop, " REJECT ": PolicyReject}
	for raw, want := range cases {
		got, err := ParsePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	at := time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC)
	n, err := NewOrderNumber(at)
	if err != nil {
		t.Fatalf("number: %v", err)
	}
	if !regexp.MustCompile(`^SV-20261015-[0-9A-HJKMNP-TV-Z]{8}$`).MatchString(n) {
		t.Fatalf("unexpected order number %s", n)
	}
}
