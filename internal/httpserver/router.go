package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/payment"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/checkout"
)

// Pinger reports store reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CartService interface {
	Create(ctx context.Context, in cartsvc.CreateInput) (*domain.Cart, error)
	Get(ctx context.Context, id string) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID string, in cartsvc.AddItemInput) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, cartID, itemID string) error
	Clear(ctx context.Context, cartID string) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request, cartToken string) (*domain.Order, error)
}

type OrderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, id, paymentStatus string) (*domain.Order, error)
}

type PaymentService interface {
	StartSession(ctx context.Context, orderID string) (*payment.Session, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Refund(ctx context.Context, orderID string) (*payment.Refund, error)
}

type CatalogService interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
}

// Sessions issues and checks cart tokens.
type Sessions interface {
	Enabled() bool
	Issue(cartID string, ownerRef *string) (string, time.Time, error)
	Authorize(token, cartID string) error
}

// AdminAuth checks operator tokens for back-office routes.
type AdminAuth interface {
	Enabled() bool
	Authorize(token string) error
}

// Deps are the services behind the routes. PaymentSvc, Sessions and Admin
// are optional; without Admin the back-office routes answer 403.
type Deps struct {
	CartSvc     CartService
	CheckoutSvc CheckoutService
	OrderSvc    OrderService
	PaymentSvc  PaymentService
	Catalog     CatalogService
	Sessions    Sessions
	Admin       AdminAuth
	CORSOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if deps.CartSvc == nil || deps.CheckoutSvc == nil || deps.OrderSvc == nil || deps.Catalog == nil {
		return nil, errors.New("httpserver: cart, checkout, order and catalog services are required")
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(zap.NewStdLog(logger.Named("access")).Writer()), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = deps.CORSOrigins
		cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", cartTokenHeader)
		cfg.ExposeHeaders = []string{cartTokenHeader}
		router.Use(cors.New(cfg))
	}

	h := &handlers{deps: deps, logger: logger}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	router.GET("/products", h.listProducts)
	router.GET("/products/:productId", h.getProduct)

	router.POST("/carts", h.createCart)
	cart := router.Group("/carts/:cartId", h.requireCartToken)
	cart.GET("", h.getCart)
	cart.DELETE("", h.clearCart)
	cart.POST("/items", h.addItem)
	cart.PATCH("/items/:itemId", h.updateItem)
	cart.DELETE("/items/:itemId", h.removeItem)

	router.POST("/orders", h.createOrder)
	router.GET("/orders/:orderId", h.getOrder)
	router.POST("/orders/:orderId/payment-session", h.createPaymentSession)

	admin := router.Group("/orders/:orderId", h.requireAdmin)
	admin.PATCH("/status", h.updateOrderStatus)
	admin.PATCH("/payment-status", h.updatePaymentStatus)
	admin.POST("/refund", h.refundOrder)

	router.POST("/payments/webhook", h.paymentWebhook)

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "db not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "db not reachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
