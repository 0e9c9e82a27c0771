package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/payment"
)

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError is the single place where domain errors become HTTP statuses.
// Internal details are logged, never returned.
func (h *handlers) writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorBody{Error: "validation failed", Code: "validation_error", Fields: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, domain.ErrEmptyCart):
		c.JSON(http.StatusConflict, errorBody{Error: "cart has no purchasable items", Code: "empty_cart"})
	case errors.Is(err, domain.ErrUnresolvableItems):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error(), Code: "unresolvable_items"})
	case errors.Is(err, domain.ErrCartNotActive):
		c.JSON(http.StatusConflict, errorBody{Error: "cart is no longer active", Code: "cart_not_active"})
	case errors.Is(err, domain.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, errorBody{Error: "cart token missing or invalid", Code: "invalid_cart_token"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, errorBody{Error: "webhook signature invalid", Code: "invalid_signature"})
	case errors.Is(err, domain.ErrCatalogUnavailable):
		h.logger.Warn("catalog unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody{Error: "catalog unavailable, please retry", Code: "catalog_unavailable"})
	case errors.Is(err, payment.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "payments are not enabled", Code: "payment_unavailable"})
	case errors.Is(err, payment.ErrProvider):
		h.logger.Warn("payment provider failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody{Error: "payment provider unavailable, please retry", Code: "payment_provider_error"})
	case errors.Is(err, domain.ErrOrderCreationFailed):
		h.logger.Error("order creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "order could not be created", Code: "order_creation_failed"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}

func (h *handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
