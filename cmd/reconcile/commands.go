package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"storefront-checkout/internal/cartcache"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/logging"
	customerrepo "storefront-checkout/internal/repository/customer"
	orderrepo "storefront-checkout/internal/repository/order"
	projectrepo "storefront-checkout/internal/repository/project"
	tokenrepo "storefront-checkout/internal/repository/token"
	customersvc "storefront-checkout/internal/service/customer"
	"storefront-checkout/internal/service/reconcile"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	cfg    config.Config
	logger *zap.SugaredLogger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Operator maintenance for storefront checkout data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.FromEnv()
			opts.logger = logging.New("reconcile", opts.cfg.LogLevel)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newExpireCommand(opts))
	cmd.AddCommand(newPruneCacheCommand(opts))
	cmd.AddCommand(newPruneTokensCommand(opts))
	return cmd
}

func newExpireCommand(opts *rootOptions) *cobra.Command {
	var (
		projectKey string
		ttlHours   int
	)
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Cancel pending orders older than the order TTL",
		Long: `Cancel every PENDING order of a project that has outlived the order TTL,
moving its checkout session to EXPIRED and its invoice to CANCELLED.

Examples:
  reconcile expire --project demo
  reconcile expire --project demo --ttl-hours 48`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.Connect(ctx, opts.cfg.DBConnString)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer pool.Close()

			project, err := projectrepo.NewPostgres(pool).GetByKey(ctx, projectKey)
			if err != nil {
				return fmt.Errorf("project %q: %w", projectKey, err)
			}
			ttl := opts.cfg.OrderTTL
			if ttlHours > 0 {
				ttl = time.Duration(ttlHours) * time.Hour
			}
			sweeper := reconcile.New(orderrepo.NewPostgres(pool, opts.logger), opts.logger)
			report, err := sweeper.ExpireStale(ctx, project.ID, ttl)
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d cancelled=%d errors=%d\n", report.Scanned, report.Cancelled, report.Errors)
			return err
		},
	}
	cmd.Flags().StringVar(&projectKey, "project", "", "project key (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "override ORDER_TTL_HOURS")
	return cmd
}

func newPruneCacheCommand(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "prune-cache",
		Short: "Delete local cart cache entries older than the cache max age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = opts.cfg.CartCachePath
			}
			store, err := cartcache.Open(path, opts.cfg.CartCacheMaxAge, cartcache.WithLogger(opts.logger))
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned=%d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "cache database path (defaults to CART_CACHE_PATH)")
	return cmd
}

func newPruneTokensCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-tokens",
		Short: "Delete expired customer access and refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.Connect(ctx, opts.cfg.DBConnString)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer pool.Close()

			customers := customersvc.New(customerrepo.NewPostgres(pool, opts.logger), tokenrepo.NewPostgres(pool), opts.logger)
			n, err := customers.PruneTokens(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned=%d\n", n)
			return nil
		},
	}
}
