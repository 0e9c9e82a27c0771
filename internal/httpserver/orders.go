package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/service/checkout"
)

type statusRequest struct {
	Status string `json:"status"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

// createOrder prices the cart server-side; any totals a client might send
// are not part of the request shape.
func (h *handlers) createOrder(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid json body")
		return
	}
	order, err := h.deps.CheckoutSvc.Checkout(c.Request.Context(), req, cartToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *handlers) getOrder(c *gin.Context) {
	order, err := h.deps.OrderSvc.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid json body")
		return
	}
	order, err := h.deps.OrderSvc.UpdateStatus(c.Request.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) updatePaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid json body")
		return
	}
	order, err := h.deps.OrderSvc.UpdatePaymentStatus(c.Request.Context(), c.Param("orderId"), req.PaymentStatus)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// requireAdmin guards back-office order routes with an operator bearer
// token. The routes stay closed when no admin secret is configured.
func (h *handlers) requireAdmin(c *gin.Context) {
	if h.deps.Admin == nil || !h.deps.Admin.Enabled() {
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "admin api is disabled", Code: "admin_disabled"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if err := h.deps.Admin.Authorize(token); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "admin role required", Code: "forbidden"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "admin token missing or invalid", Code: "invalid_admin_token"})
		return
	}
	c.Next()
}

func (h *handlers) paymentsEnabled(c *gin.Context) bool {
	if h.deps.PaymentSvc == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "payments are not enabled", Code: "payment_unavailable"})
		return false
	}
	return true
}

func (h *handlers) createPaymentSession(c *gin.Context) {
	if !h.paymentsEnabled(c) {
		return
	}
	session, err := h.deps.PaymentSvc.StartSession(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *handlers) refundOrder(c *gin.Context) {
	if !h.paymentsEnabled(c) {
		return
	}
	refund, err := h.deps.PaymentSvc.Refund(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

// paymentWebhook takes the raw body: the signature covers the exact bytes
// the provider sent.
func (h *handlers) paymentWebhook(c *gin.Context) {
	if !h.paymentsEnabled(c) {
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		h.badRequest(c, "unreadable body")
		return
	}
	if err := h.deps.PaymentSvc.HandleWebhook(c.Request.Context(), payload, c.GetHeader(payment.SignatureHeader)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
