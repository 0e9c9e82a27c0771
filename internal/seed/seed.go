package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

func salePrice(m domain.Money) *domain.Money {
	return &m
}

// Products is the demo catalog. Ids are fixed so demo carts survive reseeding.
var Products = []domain.Product{
	{
		ID:          "5d0c8a4e-3f1b-4c2a-9e61-0a4f6b7c8d01",
		Slug:        "whipped-tallow-balm",
		Name:        "Whipped Tallow Balm",
		Description: "Grass-fed tallow whipped with jojoba oil",
		Price:       2000,
		InStock:     true,
	},
	{
		ID:          "5d0c8a4e-3f1b-4c2a-9e61-0a4f6b7c8d02",
		Slug:        "tallow-lip-balm",
		Name:        "Tallow Lip Balm",
		Description: "Unscented lip balm in a tin",
		Price:       1500,
		InStock:     true,
	},
	{
		ID:          "5d0c8a4e-3f1b-4c2a-9e61-0a4f6b7c8d03",
		Slug:        "lavender-body-butter",
		Name:        "Lavender Body Butter",
		Description: "Body butter with lavender essential oil",
		Price:       3400,
		SalePrice:   salePrice(2900),
		InStock:     true,
	},
	{
		ID:          "5d0c8a4e-3f1b-4c2a-9e61-0a4f6b7c8d04",
		Slug:        "travel-size-balm",
		Name:        "Travel Size Balm",
		Description: "One ounce travel tin",
		Price:       1000,
		InStock:     false,
	},
}

// Apply upserts the demo catalog. It is idempotent via the slug upsert.
func Apply(ctx context.Context, repo ProductWriter, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	for _, p := range Products {
		if _, err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Slug, err)
		}
	}
	logger.Info("demo catalog seeded", zap.Int("count", len(Products)))
	return nil
}
