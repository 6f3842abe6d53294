// Package seed loads a demo storefront for manual testing.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

type projectEnsurer interface {
	Ensure(ctx context.Context, key, name string) (*domain.Project, error)
}

type productUpserter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

const (
	DemoProjectKey  = "demo"
	demoProjectName = "Demo Storefront"
)

func cents(v int64) *int64 { return &v }

// DemoProducts covers the three price rules: product price, declared tiers, and a
// fixed-price-only item with no catalog price.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{
			Key:         "arabica-250g",
			SKU:         "SKU-ARABICA-250",
			Name:        "Arabica Beans 250g",
			Description: "Single-origin arabica, medium roast",
			PriceCents:  cents(8500000),
			Currency:    "IDR",
			WeightGrams: 250,
			Tiers: []domain.PriceTier{
				{Key: "retail", Name: "Retail", MinQuantity: 1, PriceCents: 8500000},
				{Key: "wholesale", Name: "Wholesale (10+)", MinQuantity: 10, PriceCents: 7200000},
			},
		},
		{
			Key:         "ceramic-mug",
			SKU:         "SKU-MUG-01",
			Name:        "Ceramic Mug",
			Description: "Stoneware mug, 350ml",
			PriceCents:  cents(6500000),
			Currency:    "IDR",
			WeightGrams: 400,
		},
		{
			Key:         "custom-print",
			SKU:         "SKU-PRINT-CUSTOM",
			Name:        "Custom Print",
			Description: "Priced per order by the shop",
			Currency:    "IDR",
			WeightGrams: 150,
			Attributes:  map[string]interface{}{"pricing": "quoted"},
		},
	}
}

// Apply ensures the demo project exists and upserts its products. It is idempotent.
func Apply(ctx context.Context, projects projectEnsurer, products productUpserter, logger *zap.SugaredLogger) error {
	logger = logging.OrNop(logger)
	project, err := projects.Ensure(ctx, DemoProjectKey, demoProjectName)
	if err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}

	for _, p := range DemoProducts() {
		p.ProjectID = project.ID
		if _, err := products.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
		logger.Infow("seeded product", "project_id", project.ID, "key", p.Key, "tiers", len(p.Tiers))
	}
	return nil
}
