// Package payment is the boundary to the payment provider. It only asks the
// provider to collect an amount the order already fixed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

// ErrNotConfigured is returned when no provider secret is set.
var ErrNotConfigured = errors.New("payment provider not configured")

// ErrProvider wraps failures reported by the payment provider.
var ErrProvider = errors.New("payment provider error")

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Refund is the provider's record of a refund.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type StripeConfig struct {
	SecretKey  string
	APIBase    string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

// Stripe creates Checkout Sessions over the Stripe REST API.
type Stripe struct {
	client     *resty.Client
	configured bool
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

func NewStripe(cfg StripeConfig, logger *zap.Logger) *Stripe {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.stripe.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.SecretKey != "" {
		client.SetAuthToken(cfg.SecretKey)
	}
	return &Stripe{
		client:     client,
		configured: cfg.SecretKey != "",
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logging.OrNop(logger),
	}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession charges the order's total as a single line item.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, order *domain.Order) (*Session, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	form := map[string]string{
		"mode":                       "payment",
		"success_url":                expand(s.successURL, order),
		"cancel_url":                 expand(s.cancelURL, order),
		"client_reference_id":        order.ID,
		"billing_address_collection": "required",
	}
	form["payment_method_types[0]"] = "card"
	form["line_items[0][quantity]"] = "1"
	form["line_items[0][price_data][currency]"] = "usd"
	form["line_items[0][price_data][unit_amount]"] = strconv.FormatInt(int64(order.TotalAmount), 10)
	form["line_items[0][price_data][product_data][name]"] = "Order " + order.OrderNumber
	form["metadata[order_id]"] = order.ID
	form["metadata[order_number]"] = order.OrderNumber
	form["payment_intent_data[metadata][order_id]"] = order.ID
	if order.CustomerEmail != "" {
		form["customer_email"] = order.CustomerEmail
	}

	var session Session
	var apiErr stripeError
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", "order-"+order.ID).
		SetFormData(form).
		SetResult(&session).
		SetError(&apiErr).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.IsError() {
		return nil, s.rejected("checkout session", order, resp, apiErr)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrProvider)
	}
	return &session, nil
}

// Refund returns the full amount captured for the order's checkout session.
// The session is looked up first to find the payment intent it settled.
func (s *Stripe) Refund(ctx context.Context, order *domain.Order) (*Refund, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	intent, err := s.paymentIntent(ctx, order)
	if err != nil {
		return nil, err
	}

	var refund Refund
	var apiErr stripeError
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", "refund-"+order.ID).
		SetFormData(map[string]string{
			"payment_intent":         intent,
			"reason":                 "requested_by_customer",
			"metadata[order_id]":     order.ID,
			"metadata[order_number]": order.OrderNumber,
		}).
		SetResult(&refund).
		SetError(&apiErr).
		Post("/v1/refunds")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.IsError() {
		return nil, s.rejected("refund", order, resp, apiErr)
	}
	if refund.ID == "" {
		return nil, fmt.Errorf("%w: empty refund id", ErrProvider)
	}
	return &refund, nil
}

func (s *Stripe) paymentIntent(ctx context.Context, order *domain.Order) (string, error) {
	var session struct {
		PaymentIntent string `json:"payment_intent"`
	}
	var apiErr stripeError
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", order.PaymentReference).
		SetResult(&session).
		SetError(&apiErr).
		Get("/v1/checkout/sessions/{id}")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.IsError() {
		return "", s.rejected("session lookup", order, resp, apiErr)
	}
	if session.PaymentIntent == "" {
		return "", fmt.Errorf("%w: session %s has no payment intent", ErrProvider, order.PaymentReference)
	}
	return session.PaymentIntent, nil
}

func (s *Stripe) rejected(op string, order *domain.Order, resp *resty.Response, apiErr stripeError) error {
	s.logger.Warn("stripe rejected "+op,
		zap.String("order_number", order.OrderNumber),
		zap.Int("status", resp.StatusCode()),
		zap.String("error", apiErr.Error.Message),
	)
	return fmt.Errorf("%w: %s", ErrProvider, apiErr.Error.Message)
}

func expand(tmpl string, order *domain.Order) string {
	return strings.NewReplacer("{ORDER_NUMBER}", order.OrderNumber, "{ORDER_ID}", order.ID).Replace(tmpl)
}
