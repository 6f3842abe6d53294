package main

import (
	"context"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/logging"
	productrepo "storefront-checkout/internal/repository/product"
	projectrepo "storefront-checkout/internal/repository/project"
	"storefront-checkout/internal/seed"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New("seed", cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalw("connect db", "err", err)
	}
	defer pool.Close()

	if err := seed.Apply(ctx, projectrepo.NewPostgres(pool), productrepo.NewPostgres(pool, logger), logger); err != nil {
		logger.Fatalw("seed apply", "err", err)
	}

	logger.Infow("seed applied", "project", seed.DemoProjectKey)
}
