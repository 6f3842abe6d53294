package httpserver

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	cartsvc "storefront-checkout/internal/service/cart"
	checkoutsvc "storefront-checkout/internal/service/checkout"
	customersvc "storefront-checkout/internal/service/customer"
	"storefront-checkout/internal/service/identity"
	"storefront-checkout/internal/validation"
)

type projectLookup interface {
	GetByKey(ctx context.Context, key string) (*domain.Project, error)
}

type productService interface {
	List(ctx context.Context, projectID string) ([]domain.Product, error)
	Get(ctx context.Context, projectID, id string) (*domain.Product, error)
}

type customerService interface {
	Signup(ctx context.Context, projectID string, in customersvc.SignupInput) (*domain.Customer, error)
	Login(ctx context.Context, projectID, email, password string) (*domain.Customer, customersvc.Tokens, error)
	LookupByToken(ctx context.Context, projectID, token string) (*domain.Customer, error)
	Logout(ctx context.Context, token string) error
	AccessTTLSeconds() int
}

type identityService interface {
	ResolveOwner(ctx context.Context, req identity.Request) (identity.Resolution, error)
	MergeOnLogin(ctx context.Context, projectID, sessionHandle, accountID string) (identity.MergeResult, error)
	SignOut(ctx context.Context, projectID, sessionHandle string) (identity.Resolution, error)
}

type cartService interface {
	Get(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error)
	AddLine(ctx context.Context, projectID string, owner domain.Identity, in cartsvc.AddLineInput) (*domain.Cart, error)
	SetQuantity(ctx context.Context, projectID string, owner domain.Identity, lineID string, quantity int) (*domain.Cart, error)
	RemoveLine(ctx context.Context, projectID string, owner domain.Identity, lineID string) (*domain.Cart, error)
	Clear(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error)
}

type checkoutService interface {
	Quote(ctx context.Context, projectID string, cart *domain.Cart, shipping domain.Address) (domain.Quote, error)
	Submit(ctx context.Context, projectID string, owner domain.Identity, cart *domain.Cart, in checkoutsvc.SubmitInput) (*checkoutsvc.Result, error)
	Current(ctx context.Context, projectID string, owner domain.Identity) (*checkoutsvc.Result, error)
	ConfirmPayment(ctx context.Context, projectID, orderNumber string) (*domain.Order, error)
}

// Deps groups the services the handlers call.
type Deps struct {
	ProjectRepo   projectLookup
	ProductSvc    productService
	CustomerSvc   customerService
	IdentitySvc   identityService
	CartSvc       cartService
	CheckoutSvc   checkoutService
	Validator     *validator.Validate
	AdminUser     string
	AdminPassword string
	CORSOrigins   []string
}

type handlers struct {
	deps   Deps
	logger *zap.SugaredLogger
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.SugaredLogger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if deps.ProjectRepo == nil || deps.ProductSvc == nil || deps.CustomerSvc == nil || deps.IdentitySvc == nil || deps.CartSvc == nil || deps.CheckoutSvc == nil {
		return nil, errors.New("httpserver: missing dependency")
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(zap.NewStdLog(logger.Desugar()).Writer()), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", sessionHeader},
			ExposeHeaders:    []string{sessionHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{deps: deps, logger: logger}
	project := router.Group("/:projectKey", projectMiddleware(deps.ProjectRepo))

	project.GET("/products", h.listProducts)
	project.GET("/products/:id", h.getProduct)

	me := project.Group("/me")
	me.POST("/signup", h.signup)
	me.POST("/login", h.login)
	me.POST("/logout", h.logout)

	owned := me.Group("", identityMiddleware(deps.CustomerSvc, deps.IdentitySvc))
	owned.GET("/identity", h.currentIdentity)
	owned.POST("/cart/merge", requireCustomer, h.retryMerge)
	owned.GET("/cart", h.getCart)
	owned.POST("/cart/lines", h.addLine)
	owned.PATCH("/cart/lines/:lineId", h.updateLine)
	owned.DELETE("/cart/lines/:lineId", h.removeLine)
	owned.DELETE("/cart", h.clearCart)
	owned.POST("/checkout/quote", h.quote)
	owned.POST("/checkout", h.submitCheckout)
	owned.GET("/orders/current", h.currentOrder)

	if deps.AdminUser != "" && deps.AdminPassword != "" {
		admin := project.Group("/admin", gin.BasicAuth(gin.Accounts{deps.AdminUser: deps.AdminPassword}))
		admin.POST("/orders/:orderNumber/confirm-payment", h.confirmPayment)
	}

	return router, nil
}
