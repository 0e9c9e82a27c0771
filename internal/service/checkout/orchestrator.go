// Package checkout runs a checkout request end to end: input validation,
// cart ownership, billing defaults, then order creation.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
	ordersvc "storefront/internal/service/order"
)

// Request is the POST /orders payload.
type Request struct {
	CartID               string          `json:"cartId" validate:"required"`
	CustomerEmail        string          `json:"customerEmail" validate:"required,email,max=254"`
	CustomerName         string          `json:"customerName" validate:"required,max=200"`
	CustomerPhone        string          `json:"customerPhone,omitempty" validate:"max=40"`
	ShippingAddress      domain.Address  `json:"shippingAddress"`
	BillingAddress       *domain.Address `json:"billingAddress,omitempty" validate:"omitempty"`
	UseShippingAsBilling bool            `json:"useShippingAsBilling"`
	Notes                string          `json:"notes,omitempty" validate:"max=1000"`
}

type orderWriter interface {
	CreateOrder(ctx context.Context, in ordersvc.CreateInput) (*domain.Order, error)
}

type authorizer interface {
	Authorize(token, cartID string) error
}

type Orchestrator struct {
	writer   orderWriter
	auth     authorizer
	validate *validator.Validate
	logger   *zap.Logger
}

// New builds an Orchestrator. A nil auth skips cart ownership checks.
func New(writer orderWriter, auth authorizer, logger *zap.Logger) *Orchestrator {
	logger = logging.OrNop(logger)
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Orchestrator{writer: writer, auth: auth, validate: v, logger: logger}
}

// Checkout validates req and creates the order. cartToken is the caller's
// cart session token. On failure the cart stays active so the caller can
// retry unchanged.
func (o *Orchestrator) Checkout(ctx context.Context, req Request, cartToken string) (*domain.Order, error) {
	normalize(&req)
	if err := o.check(req); err != nil {
		return nil, err
	}
	if o.auth != nil {
		if err := o.auth.Authorize(cartToken, req.CartID); err != nil {
			return nil, err
		}
	}

	billing := req.ShippingAddress
	if !req.UseShippingAsBilling && req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	order, err := o.writer.CreateOrder(ctx, ordersvc.CreateInput{
		CartID: req.CartID,
		Contact: domain.Contact{
			Email: req.CustomerEmail,
			Name:  req.CustomerName,
			Phone: req.CustomerPhone,
		},
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Notes:           req.Notes,
	})
	if err != nil {
		o.logger.Info("checkout failed", zap.String("cart_id", req.CartID), zap.Error(err))
		return nil, err
	}
	o.logger.Info("checkout completed",
		zap.String("cart_id", req.CartID),
		zap.String("order_number", order.OrderNumber),
		zap.Stringer("total", order.TotalAmount),
	)
	return order, nil
}

func (o *Orchestrator) check(req Request) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate checkout: %w", err)
	}
	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe.Namespace()), message(fe))
	}
	return verr
}

// fieldPath drops the struct name validator puts in front of the namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

func normalize(req *Request) {
	req.CartID = strings.TrimSpace(req.CartID)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.Notes = strings.TrimSpace(req.Notes)
	trimAddress(&req.ShippingAddress)
	if req.UseShippingAsBilling {
		req.BillingAddress = nil
	}
	if req.BillingAddress != nil {
		trimAddress(req.BillingAddress)
	}
}

func trimAddress(a *domain.Address) {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
}
