package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

const cartTokenHeader = "X-Cart-Token"

type cartResponse struct {
	*domain.Cart
	Token string `json:"token,omitempty"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func cartToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(cartTokenHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
}

func (h *handlers) sessionsEnabled() bool {
	return h.deps.Sessions != nil && h.deps.Sessions.Enabled()
}

func (h *handlers) requireCartToken(c *gin.Context) {
	if !h.sessionsEnabled() {
		c.Next()
		return
	}
	if err := h.deps.Sessions.Authorize(cartToken(c), c.Param("cartId")); err != nil {
		h.writeError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func (h *handlers) createCart(c *gin.Context) {
	var req cartsvc.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid json body")
		return
	}
	cart, err := h.deps.CartSvc.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := cartResponse{Cart: cart}
	if h.sessionsEnabled() {
		token, _, err := h.deps.Sessions.Issue(cart.ID, cart.OwnerRef)
		if err != nil {
			h.writeError(c, err)
			return
		}
		resp.Token = token
		c.Header(cartTokenHeader, token)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), c.Param("cartId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) addItem(c *gin.Context) {
	var req cartsvc.AddItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid json body")
		return
	}
	item, err := h.deps.CartSvc.AddItem(c.Request.Context(), c.Param("cartId"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *handlers) updateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid json body")
		return
	}
	if req.Quantity == nil {
		h.writeError(c, domain.NewValidationError("quantity", "is required"))
		return
	}
	item, err := h.deps.CartSvc.UpdateItemQuantity(c.Request.Context(), c.Param("cartId"), c.Param("itemId"), *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *handlers) removeItem(c *gin.Context) {
	if err := h.deps.CartSvc.RemoveItem(c.Request.Context(), c.Param("cartId"), c.Param("itemId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) clearCart(c *gin.Context) {
	if err := h.deps.CartSvc.Clear(c.Request.Context(), c.Param("cartId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
