package cart

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
	cartrepo "storefront/internal/repository/cart"
)

// MaxItemQuantity caps a single add or update request.
const MaxItemQuantity = 999

type Service struct {
	repo   cartrepo.Repository
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New builds the cart service. A zero ttl creates carts without an expiry.
func New(repo cartrepo.Repository, ttl time.Duration, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger)
	return &Service{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

type CreateInput struct {
	OwnerRef *string `json:"ownerRef,omitempty"`
}

type AddItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Cart, error) {
	var owner *string
	if in.OwnerRef != nil {
		if v := strings.TrimSpace(*in.OwnerRef); v != "" {
			owner = &v
		}
	}
	var expires *time.Time
	if s.ttl > 0 {
		at := s.now().Add(s.ttl)
		expires = &at
	}
	cart, err := s.repo.Create(ctx, cartrepo.CreateCartInput{OwnerRef: owner, ExpiresAt: expires})
	if err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Cart, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// AddItem merges quantity into an existing line for the same product. The
// product id is not checked against the catalog here; checkout resolves it.
func (s *Service) AddItem(ctx context.Context, cartID string, in AddItemInput) (*domain.CartItem, error) {
	productID := strings.TrimSpace(in.ProductID)
	verr := &domain.ValidationError{}
	if productID == "" {
		verr.Add("productId", "is required")
	}
	if in.Quantity < 1 || in.Quantity > MaxItemQuantity {
		verr.Add("quantity", "must be between 1 and 999")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	if !validID(cartID) {
		return nil, domain.ErrNotFound
	}
	return s.repo.AddItem(ctx, cartID, productID, in.Quantity)
}

// UpdateItemQuantity sets an absolute quantity. A quantity of zero or less
// removes the line and returns a nil item.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.CartItem, error) {
	if quantity > MaxItemQuantity {
		return nil, domain.NewValidationError("quantity", "must not exceed 999")
	}
	if !validID(cartID) {
		return nil, domain.ErrNotFound
	}
	if quantity <= 0 {
		return nil, s.RemoveItem(ctx, cartID, itemID)
	}
	return s.repo.SetItemQuantity(ctx, cartID, itemID, quantity)
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	if !validID(cartID) {
		return domain.ErrNotFound
	}
	return s.repo.RemoveItem(ctx, cartID, itemID)
}

// Clear empties the cart; the cart itself is kept.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	if !validID(cartID) {
		return domain.ErrNotFound
	}
	return s.repo.Clear(ctx, cartID)
}

// AbandonExpired marks active carts past their expiry as abandoned.
func (s *Service) AbandonExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.AbandonExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("expired carts abandoned", zap.Int64("count", n))
	return n, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
