// Command janitor marks active carts past their expiry as abandoned. It runs
// once and exits; schedule it externally.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logging"
	cartrepo "storefront/internal/repository/cart"
	cartsvc "storefront/internal/service/cart"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("janitor")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	svc := cartsvc.New(cartrepo.NewPostgres(pool, logger), cfg.CartTTL, logger)
	if _, err := svc.AbandonExpired(ctx); err != nil {
		logger.Fatal("abandon expired carts", zap.Error(err))
	}
}
