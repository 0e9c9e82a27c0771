package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront/internal/domain"
)

func (h *handlers) listProducts(c *gin.Context) {
	products, err := h.deps.Catalog.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"results": products, "total": len(products)})
}

func (h *handlers) getProduct(c *gin.Context) {
	product, err := h.deps.Catalog.GetProductByID(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
