package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
	orderrepo "storefront/internal/repository/order"
)

// Service reads orders and applies lifecycle updates. Monetary fields are
// never touched after creation.
type Service struct {
	repo   orderrepo.Repository
	now    func() time.Time
	logger *zap.Logger
}

func NewService(repo orderrepo.Repository, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger)
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.ValidOrderStatus(status) {
		return nil, domain.NewValidationError("status", "must be one of pending, processing, shipped, delivered, cancelled, refunded")
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status updated", zap.String("order_number", order.OrderNumber), zap.String("status", status))
	return order, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) (*domain.Order, error) {
	paymentStatus = strings.ToLower(strings.TrimSpace(paymentStatus))
	if !domain.ValidPaymentStatus(paymentStatus) {
		return nil, domain.NewValidationError("paymentStatus", "must be one of pending, paid, failed, refunded")
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.UpdatePayment(ctx, id, paymentStatus, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order payment status updated", zap.String("order_number", order.OrderNumber), zap.String("payment_status", paymentStatus))
	return order, nil
}

// SetPaymentReference records the payment provider's session id without
// changing the payment status.
func (s *Service) SetPaymentReference(ctx context.Context, id, reference string) (*domain.Order, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdatePayment(ctx, id, current.PaymentStatus, &reference)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
