package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	cartsvc "storefront-checkout/internal/service/cart"
	checkoutsvc "storefront-checkout/internal/service/checkout"
	customersvc "storefront-checkout/internal/service/customer"
	"storefront-checkout/internal/service/identity"
)

type stubProjectRepo struct {
	project *domain.Project
	err     error
}

func (s *stubProjectRepo) GetByKey(_ context.Context, _ string) (*domain.Project, error) {
	return s.project, s.err
}

type stubProductService struct {
	products []domain.Product
	err      error
}

func (s *stubProductService) List(context.Context, string) ([]domain.Product, error) {
	return s.products, s.err
}

func (s *stubProductService) Get(_ context.Context, _ string, id string) (*domain.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

type stubCustomerService struct {
	customer  *domain.Customer
	signErr   error
	loginErr  error
	lookupErr error
	revoked   []string
}

func (s *stubCustomerService) Signup(_ context.Context, _ string, _ customersvc.SignupInput) (*domain.Customer, error) {
	return s.customer, s.signErr
}

func (s *stubCustomerService) Login(_ context.Context, _ string, _ string, _ string) (*domain.Customer, customersvc.Tokens, error) {
	if s.loginErr != nil {
		return nil, customersvc.Tokens{}, s.loginErr
	}
	return s.customer, customersvc.Tokens{Access: "access", Refresh: "refresh"}, nil
}

func (s *stubCustomerService) LookupByToken(_ context.Context, _ string, token string) (*domain.Customer, error) {
	if s.lookupErr != nil || token != "access" {
		return nil, customersvc.ErrInvalidToken
	}
	return s.customer, nil
}

func (s *stubCustomerService) Logout(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return nil
}

func (s *stubCustomerService) AccessTTLSeconds() int { return 3600 }

type stubIdentityService struct {
	resolveErr error
	mergeRes   identity.MergeResult
	mergeErr   error
	mergeCalls []string
	lastReq    identity.Request
}

func (s *stubIdentityService) ResolveOwner(_ context.Context, req identity.Request) (identity.Resolution, error) {
	s.lastReq = req
	if s.resolveErr != nil {
		return identity.Resolution{}, s.resolveErr
	}
	if req.AccountID != "" {
		return identity.Resolution{Identity: domain.Authenticated(req.AccountID), SessionHandle: req.SessionHandle}, nil
	}
	if req.SessionHandle == "" {
		return identity.Resolution{Identity: domain.Anonymous("minted"), SessionHandle: "new-handle", Minted: true}, nil
	}
	return identity.Resolution{Identity: domain.Anonymous("guest-" + req.SessionHandle), SessionHandle: req.SessionHandle}, nil
}

func (s *stubIdentityService) MergeOnLogin(_ context.Context, _ string, handle, accountID string) (identity.MergeResult, error) {
	s.mergeCalls = append(s.mergeCalls, handle+"->"+accountID)
	return s.mergeRes, s.mergeErr
}

func (s *stubIdentityService) SignOut(_ context.Context, _ string, handle string) (identity.Resolution, error) {
	if handle == "" {
		handle = "new-handle"
	}
	return identity.Resolution{Identity: domain.Anonymous("fresh"), SessionHandle: handle}, nil
}

type stubCartService struct {
	cart      *domain.Cart
	err       error
	lastOwner domain.Identity
	lastAdd   cartsvc.AddLineInput
}

func (s *stubCartService) result(owner domain.Identity) (*domain.Cart, error) {
	s.lastOwner = owner
	if s.err != nil {
		return nil, s.err
	}
	if s.cart != nil {
		return s.cart, nil
	}
	return &domain.Cart{Owner: owner, Currency: "IDR"}, nil
}

func (s *stubCartService) Get(_ context.Context, _ string, owner domain.Identity) (*domain.Cart, error) {
	return s.result(owner)
}

func (s *stubCartService) AddLine(_ context.Context, _ string, owner domain.Identity, in cartsvc.AddLineInput) (*domain.Cart, error) {
	s.lastAdd = in
	return s.result(owner)
}

func (s *stubCartService) SetQuantity(_ context.Context, _ string, owner domain.Identity, _ string, _ int) (*domain.Cart, error) {
	return s.result(owner)
}

func (s *stubCartService) RemoveLine(_ context.Context, _ string, owner domain.Identity, _ string) (*domain.Cart, error) {
	return s.result(owner)
}

func (s *stubCartService) Clear(_ context.Context, _ string, owner domain.Identity) (*domain.Cart, error) {
	return s.result(owner)
}

type stubCheckoutService struct {
	result     *checkoutsvc.Result
	err        error
	confirmErr error
	lastInput  checkoutsvc.SubmitInput
}

func (s *stubCheckoutService) Quote(context.Context, string, *domain.Cart, domain.Address) (domain.Quote, error) {
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return domain.Quote{Currency: "IDR", SubtotalCents: 1000, ShippingFeeCents: 20000, TotalCents: 21000}, nil
}

func (s *stubCheckoutService) Submit(_ context.Context, _ string, _ domain.Identity, _ *domain.Cart, in checkoutsvc.SubmitInput) (*checkoutsvc.Result, error) {
	s.lastInput = in
	return s.result, s.err
}

func (s *stubCheckoutService) Current(context.Context, string, domain.Identity) (*checkoutsvc.Result, error) {
	return s.result, s.err
}

func (s *stubCheckoutService) ConfirmPayment(_ context.Context, _ string, number string) (*domain.Order, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &domain.Order{OrderNumber: number, Status: domain.OrderConfirmed, PaymentStatus: domain.PaymentPaid}, nil
}

func testDeps() Deps {
	return Deps{
		ProjectRepo:   &stubProjectRepo{project: &domain.Project{ID: "proj-id", Key: "proj-key"}},
		ProductSvc:    &stubProductService{},
		CustomerSvc:   &stubCustomerService{customer: &domain.Customer{ID: "cust-id", ProjectID: "proj-id", Email: "user@example.com"}},
		IdentitySvc:   &stubIdentityService{},
		CartSvc:       &stubCartService{},
		CheckoutSvc:   &stubCheckoutService{},
		AdminUser:     "ops",
		AdminPassword: "secret",
	}
}

func newTestRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := buildRouter(zap.NewNop().Sugar(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return router
}

func doRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
