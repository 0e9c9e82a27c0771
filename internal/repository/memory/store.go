// Package memory is an in-process implementation of the cart, order and
// catalog stores. It backs tests and local demos; it is not durable.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
	orderrepo "storefront/internal/repository/order"
)

// Store shares one lock across carts and orders so that order creation and
// cart conversion are atomic, matching the transactional Postgres store.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	carts      map[string]*domain.Cart
	orders     map[string]*domain.Order
	orderNums  map[string]string
	failCreate error
}

func NewStore() *Store {
	return &Store{
		now:       func() time.Time { return time.Now().UTC() },
		carts:     make(map[string]*domain.Cart),
		orders:    make(map[string]*domain.Order),
		orderNums: make(map[string]string),
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailNextOrderCreate makes the next order Create return err without writing.
func (s *Store) FailNextOrderCreate(err error) {
	s.mu.Lock()
	s.failCreate = err
	s.mu.Unlock()
}

// OrderCount reports how many orders exist.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Carts() cartrepo.Repository {
	return &cartStore{s: s}
}

func (s *Store) Orders() orderrepo.Repository {
	return &orderStore{s: s}
}

type cartStore struct {
	s *Store
}

func (c *cartStore) Create(_ context.Context, in cartrepo.CreateCartInput) (*domain.Cart, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	now := c.s.now()
	cart := &domain.Cart{
		ID:        uuid.NewString(),
		OwnerRef:  copyString(in.OwnerRef),
		Status:    domain.CartStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: copyTime(in.ExpiresAt),
		Items:     []domain.CartItem{},
	}
	c.s.carts[cart.ID] = cart
	return cloneCart(cart), nil
}

func (c *cartStore) GetByID(_ context.Context, id string) (*domain.Cart, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart, ok := c.s.carts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCart(cart), nil
}

func (c *cartStore) AddItem(_ context.Context, cartID, productID string, quantity int) (*domain.CartItem, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart, err := c.s.activeCart(cartID)
	if err != nil {
		return nil, err
	}
	now := c.s.now()
	cart.UpdatedAt = now
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += quantity
			cart.Items[i].UpdatedAt = now
			item := cart.Items[i]
			return &item, nil
		}
	}
	item := domain.CartItem{
		ID:        uuid.NewString(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cart.Items = append(cart.Items, item)
	return &item, nil
}

func (c *cartStore) SetItemQuantity(_ context.Context, cartID, itemID string, quantity int) (*domain.CartItem, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart, err := c.s.activeCart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			now := c.s.now()
			cart.Items[i].Quantity = quantity
			cart.Items[i].UpdatedAt = now
			cart.UpdatedAt = now
			item := cart.Items[i]
			return &item, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *cartStore) RemoveItem(_ context.Context, cartID, itemID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart, err := c.s.activeCart(cartID)
	if err != nil {
		return err
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.UpdatedAt = c.s.now()
			return nil
		}
	}
	return nil
}

func (c *cartStore) Clear(_ context.Context, cartID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart, err := c.s.activeCart(cartID)
	if err != nil {
		return err
	}
	cart.Items = []domain.CartItem{}
	cart.UpdatedAt = c.s.now()
	return nil
}

func (c *cartStore) AbandonExpired(_ context.Context, now time.Time) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	var n int64
	for _, cart := range c.s.carts {
		if cart.Status == domain.CartStatusActive && cart.ExpiresAt != nil && cart.ExpiresAt.Before(now) {
			cart.Status = domain.CartStatusAbandoned
			cart.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// activeCart must be called with mu held.
func (s *Store) activeCart(id string) (*domain.Cart, error) {
	cart, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !cart.IsActive() {
		return nil, domain.ErrCartNotActive
	}
	return cart, nil
}

type orderStore struct {
	s *Store
}

func (o *orderStore) Create(_ context.Context, in orderrepo.CreateOrderInput) (*domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if err := o.s.failCreate; err != nil {
		o.s.failCreate = nil
		return nil, err
	}
	if _, taken := o.s.orderNums[in.OrderNumber]; taken {
		return nil, domain.ErrAlreadyExists
	}

	var cart *domain.Cart
	if in.CartID != "" {
		var err error
		if cart, err = o.s.activeCart(in.CartID); err != nil {
			return nil, err
		}
	}

	now := o.s.now()
	order := &domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     in.OrderNumber,
		CustomerEmail:   in.Contact.Email,
		CustomerName:    in.Contact.Name,
		CustomerPhone:   in.Contact.Phone,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Subtotal:        in.Subtotal,
		Tax:             in.Tax,
		ShippingCost:    in.ShippingCost,
		TotalAmount:     in.TotalAmount,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           make([]domain.OrderItem, 0, len(in.Lines)),
	}
	if in.CartID != "" {
		order.CartID = copyString(&in.CartID)
	}
	for _, line := range in.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			ID:              uuid.NewString(),
			OrderID:         order.ID,
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			ProductSlug:     line.ProductSlug,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.PriceAtPurchase,
			Subtotal:        line.Subtotal(),
			CreatedAt:       now,
		})
	}

	o.s.orders[order.ID] = order
	o.s.orderNums[order.OrderNumber] = order.ID
	if cart != nil {
		cart.Status = domain.CartStatusConverted
		cart.UpdatedAt = now
	}
	return cloneOrder(order), nil
}

func (o *orderStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (o *orderStore) UpdateStatus(_ context.Context, id, status string, at time.Time) (*domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	if status == domain.OrderStatusShipped && order.ShippedAt == nil {
		order.ShippedAt = copyTime(&at)
	}
	if status == domain.OrderStatusDelivered && order.DeliveredAt == nil {
		order.DeliveredAt = copyTime(&at)
	}
	return cloneOrder(order), nil
}

func (o *orderStore) UpdatePayment(_ context.Context, id, paymentStatus string, reference *string) (*domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order.PaymentStatus = paymentStatus
	if reference != nil {
		order.PaymentReference = *reference
	}
	order.UpdatedAt = o.s.now()
	return cloneOrder(order), nil
}

// Catalog is an in-memory product source. Mutations simulate CMS edits.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	err      error
}

func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Put(p domain.Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

func (c *Catalog) Delete(id string) {
	c.mu.Lock()
	delete(c.products, id)
	c.mu.Unlock()
}

// SetPrice changes the list price of an existing product.
func (c *Catalog) SetPrice(id string, price domain.Money) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[id]; ok {
		p.Price = price
		c.products[id] = p
	}
}

// SetError makes every read fail with err until cleared with nil.
func (c *Catalog) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Catalog) List(_ context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Catalog) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (c *Catalog) GetProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.OwnerRef = copyString(c.OwnerRef)
	out.ExpiresAt = copyTime(c.ExpiresAt)
	out.Items = append([]domain.CartItem{}, c.Items...)
	return &out
}

func cloneOrder(o *domain.Order) *domain.Order {
	out := *o
	out.CartID = copyString(o.CartID)
	out.ShippedAt = copyTime(o.ShippedAt)
	out.DeliveredAt = copyTime(o.DeliveredAt)
	out.Items = append([]domain.OrderItem{}, o.Items...)
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
