package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/domain"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	cartrepo "storefront/internal/repository/cart"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/checkout"
	ordersvc "storefront/internal/service/order"
	"storefront/internal/service/session"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("api")

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	reader, err := newCatalog(cfg, dbpool, logger)
	if err != nil {
		logger.Fatal("init catalog", zap.Error(err))
	}
	policy, err := ordersvc.ParsePolicy(cfg.UnresolvableLinePolicy)
	if err != nil {
		logger.Fatal("parse config", zap.Error(err))
	}

	cartRepo := cartrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	sessions := session.NewManager(cfg.CartSessionSecret, cfg.CartSessionTTL)
	if !sessions.Enabled() {
		logger.Warn("CART_SESSION_SECRET not set, cart tokens are not enforced")
	}
	admin := session.NewAdmin(cfg.AdminJWTSecret)
	if !admin.Enabled() {
		logger.Warn("ADMIN_JWT_SECRET not set, back-office order routes are closed")
	}
	webhooks := payment.NewWebhookVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)
	if !webhooks.Enabled() {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, payment webhooks are rejected")
	}

	calc := pricing.New(cfg.TaxRateBPS, domain.Money(cfg.FreeShippingThresholdCents), domain.Money(cfg.FlatShippingCents))
	writer := ordersvc.NewWriter(cartRepo, orderRepo, reader, ordersvc.Config{Pricing: calc, Policy: policy}, logger)
	orderService := ordersvc.NewService(orderRepo, logger)
	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:  cfg.Stripe.SecretKey,
		APIBase:    cfg.Stripe.APIBase,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	}, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		CartSvc:     cartsvc.New(cartRepo, cfg.CartTTL, logger),
		CheckoutSvc: checkout.New(writer, sessions, logger),
		OrderSvc:    orderService,
		PaymentSvc:  payment.NewService(orderService, stripe, webhooks, logger),
		Catalog:     reader,
		Sessions:    sessions,
		Admin:       admin,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

func newCatalog(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (catalog.Reader, error) {
	switch cfg.CatalogSource {
	case "", "postgres":
		return catalog.FromRepository(productrepo.NewPostgres(pool, logger)), nil
	case "sanity":
		s, err := catalog.NewSanity(catalog.SanityConfig{
			ProjectID:  cfg.Sanity.ProjectID,
			Dataset:    cfg.Sanity.Dataset,
			APIVersion: cfg.Sanity.APIVersion,
			Token:      cfg.Sanity.Token,
			UseCDN:     cfg.Sanity.UseCDN,
			Timeout:    cfg.CatalogTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return catalog.Guard(s), nil
	}
	return nil, errors.New("unknown CATALOG_SOURCE " + cfg.CatalogSource)
}
