package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

type provider interface {
	CreateCheckoutSession(ctx context.Context, order *domain.Order) (*Session, error)
	Refund(ctx context.Context, order *domain.Order) (*Refund, error)
}

type orderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	SetPaymentReference(ctx context.Context, id, reference string) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) (*domain.Order, error)
}

// Service opens provider sessions for existing orders, applies the
// provider's signed webhooks to their payment status and issues refunds.
type Service struct {
	orders   orderService
	provider provider
	webhooks *WebhookVerifier
	logger   *zap.Logger
}

// NewService wires the payment flow. webhooks may be nil, in which case
// webhook delivery is rejected as not configured.
func NewService(orders orderService, p provider, webhooks *WebhookVerifier, logger *zap.Logger) *Service {
	return &Service{orders: orders, provider: p, webhooks: webhooks, logger: logging.OrNop(logger)}
}

func (s *Service) StartSession(ctx context.Context, orderID string) (*Session, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return nil, domain.NewValidationError("paymentStatus", "order is not awaiting payment")
	}
	session, err := s.provider.CreateCheckoutSession(ctx, order)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.SetPaymentReference(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("record payment reference: %w", err)
	}
	s.logger.Info("payment session created", zap.String("order_number", order.OrderNumber), zap.String("session_id", session.ID))
	return session, nil
}

// HandleWebhook verifies a provider callback and moves the referenced
// order's payment status. Events that carry no order, name an unknown order
// or would roll the status back are acknowledged without change so the
// provider stops redelivering them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.webhooks.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			s.logger.Warn("webhook signature rejected")
		}
		return err
	}
	log := s.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	var obj eventObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return domain.NewValidationError("data.object", "malformed event object")
	}
	status, ok := paymentStatusFor(ev, obj)
	if !ok {
		log.Debug("webhook ignored")
		return nil
	}
	orderID := obj.Metadata["order_id"]
	if orderID == "" {
		log.Warn("webhook without order id")
		return nil
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("webhook for unknown order", zap.String("order_id", orderID))
			return nil
		}
		return err
	}
	if !canTransition(order.PaymentStatus, status) {
		log.Info("webhook does not change payment status",
			zap.String("order_number", order.OrderNumber),
			zap.String("payment_status", order.PaymentStatus),
			zap.String("requested", status),
		)
		return nil
	}
	if _, err := s.orders.UpdatePaymentStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("apply webhook: %w", err)
	}
	log.Info("payment status updated from webhook", zap.String("order_number", order.OrderNumber), zap.String("payment_status", status))
	return nil
}

// Refund returns a paid order's full amount and marks it refunded.
func (s *Service) Refund(ctx context.Context, orderID string) (*Refund, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return nil, domain.NewValidationError("paymentStatus", "only paid orders can be refunded")
	}
	if order.PaymentReference == "" {
		return nil, domain.NewValidationError("paymentReference", "order has no payment session")
	}
	refund, err := s.provider.Refund(ctx, order)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusRefunded); err != nil {
		return nil, fmt.Errorf("record refund %s: %w", refund.ID, err)
	}
	s.logger.Info("order refunded", zap.String("order_number", order.OrderNumber), zap.String("refund_id", refund.ID))
	return refund, nil
}
