package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"storefront-checkout/internal/cartcache"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/httpserver"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/notify"
	cartrepo "storefront-checkout/internal/repository/cart"
	customerrepo "storefront-checkout/internal/repository/customer"
	orderrepo "storefront-checkout/internal/repository/order"
	productrepo "storefront-checkout/internal/repository/product"
	projectrepo "storefront-checkout/internal/repository/project"
	sessionrepo "storefront-checkout/internal/repository/session"
	tokenrepo "storefront-checkout/internal/repository/token"
	anonymoussvc "storefront-checkout/internal/service/anonymous"
	cartsvc "storefront-checkout/internal/service/cart"
	checkoutsvc "storefront-checkout/internal/service/checkout"
	customersvc "storefront-checkout/internal/service/customer"
	identitysvc "storefront-checkout/internal/service/identity"
	productsvc "storefront-checkout/internal/service/product"
	"storefront-checkout/internal/service/reconcile"
	"storefront-checkout/internal/validation"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New("api", cfg.LogLevel)
	defer logger.Sync()

	storefront, err := config.LoadStorefront(cfg.StorefrontPath)
	if err != nil {
		logger.Fatalw("load storefront settings", "err", err)
	}

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalw("connect to db", "err", err)
	}
	defer dbpool.Close()

	cache, err := cartcache.Open(cfg.CartCachePath, cfg.CartCacheMaxAge, cartcache.WithLogger(logger))
	if err != nil {
		logger.Fatalw("open cart cache", "path", cfg.CartCachePath, "err", err)
	}
	if pruned, err := cache.Prune(ctx); err != nil {
		logger.Warnw("prune cart cache", "err", err)
	} else if pruned > 0 {
		logger.Infow("pruned stale cart cache entries", "count", pruned)
	}

	sender, err := notify.FromConfig(ctx, cfg.Notify, logger)
	if err != nil {
		logger.Fatalw("init notifications", "driver", cfg.Notify.Driver, "err", err)
	}

	projectRepo := projectrepo.NewPostgres(dbpool)
	productRepo := productrepo.NewPostgres(dbpool, logger)
	customerRepo := customerrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)

	productService := productsvc.New(productRepo, logger)
	customerService := customersvc.New(customerRepo, tokenrepo.NewPostgres(dbpool), logger)
	cartService := cartsvc.New(cartrepo.NewPostgres(dbpool, logger), productRepo, cache, storefront.Currency, logger)
	identityService := identitysvc.New(sessionrepo.NewPostgres(dbpool, logger), anonymoussvc.New(cfg.SessionSecret), cartService, logger)

	numbers, err := checkoutsvc.NewNumbers(cfg.OrderNumberSecret, cfg.PaymentRefSalt)
	if err != nil {
		logger.Fatalw("init order numbers", "err", err)
	}
	checkoutService := checkoutsvc.New(
		orderRepo,
		checkoutsvc.NewPricer(productRepo, storefront, 0),
		reconcile.New(orderRepo, logger),
		numbers,
		sender,
		customerService,
		checkoutsvc.Settings{
			OrderTTL: cfg.OrderTTL,
			Destination: domain.SettlementDestination{
				BankName:      storefront.Settlement.BankName,
				AccountNumber: storefront.Settlement.AccountNumber,
				AccountHolder: storefront.Settlement.AccountHolder,
			},
		},
		logger,
	)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		ProjectRepo:   projectRepo,
		ProductSvc:    productService,
		CustomerSvc:   customerService,
		IdentitySvc:   identityService,
		CartSvc:       cartService,
		CheckoutSvc:   checkoutService,
		Validator:     validation.New(),
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
		CORSOrigins:   cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatalw("init server", "err", err)
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
		logger.Infow("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Errorw("server error", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(ctx)
	checkoutService.Wait()
	if err := multierr.Combine(shutdownErr, cache.Close()); err != nil {
		logger.Errorw("graceful shutdown failed", "err", err)
	} else {
		logger.Infow("server stopped")
	}
}
