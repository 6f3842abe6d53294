package main

import (
	"context"
	"flag"
	"os"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/importer"
	"storefront-checkout/internal/logging"
	productrepo "storefront-checkout/internal/repository/product"
	projectrepo "storefront-checkout/internal/repository/project"
)

func main() {
	var (
		projectKey  string
		projectName string
		file        string
	)
	flag.StringVar(&projectKey, "project", "demo", "project key to import into")
	flag.StringVar(&projectName, "project-name", "", "project name used when the project is created")
	flag.StringVar(&file, "file", "catalog.csv", "catalog CSV file")
	flag.Parse()

	cfg := config.FromEnv()
	logger := logging.New("importer", cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalw("connect db", "err", err)
	}
	defer pool.Close()

	if projectName == "" {
		projectName = projectKey
	}
	project, err := projectrepo.NewPostgres(pool).Ensure(ctx, projectKey, projectName)
	if err != nil {
		logger.Fatalw("ensure project", "project", projectKey, "err", err)
	}

	f, err := os.Open(file)
	if err != nil {
		logger.Fatalw("open catalog", "file", file, "err", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, productrepo.NewPostgres(pool, logger), project.ID, logger)
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalw("import catalog", "imported", count, "err", err)
	}
	logger.Infow("catalog imported", "project", projectKey, "products", count)
}
