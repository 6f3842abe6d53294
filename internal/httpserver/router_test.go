package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
)

func TestProjectMiddleware_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubProjectRepo{
		project: &domain.Project{ID: "123", Key: "proj", Name: "Test"},
	}
	router := gin.New()
	router.Use(projectMiddleware(repo))
	router.GET("/projects/:projectKey/test", func(c *gin.Context) {
		if p := projectFrom(c); p == nil || p.ID != "123" {
			t.Fatalf("expected project in context, got %+v", p)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/proj/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestProjectMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name string
		repo *stubProjectRepo
		path string
		want int
	}{
		{name: "not found", repo: &stubProjectRepo{err: domain.ErrNotFound}, path: "/projects/missing/test", want: http.StatusNotFound},
		{name: "storage error", repo: &stubProjectRepo{err: errors.New("boom")}, path: "/projects/proj/test", want: http.StatusInternalServerError},
		{name: "missing key", repo: &stubProjectRepo{}, path: "/projects//test", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(projectMiddleware(tt.repo))
			router.GET("/projects/:projectKey/test", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestBuildRouter_RequiresDependencies(t *testing.T) {
	deps := testDeps()
	deps.CheckoutSvc = nil
	if _, err := buildRouter(zap.NewNop().Sugar(), nil, deps); err == nil {
		t.Fatal("expected error for missing checkout service")
	}
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, testDeps())

	if rec := doRequest(router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db: %d", rec.Code)
	}
}

func TestProducts(t *testing.T) {
	deps := testDeps()
	deps.ProductSvc = &stubProductService{products: []domain.Product{{ID: "p1", Key: "coffee", Name: "Coffee", WeightGrams: 250}}}
	router := newTestRouter(t, deps)

	rec := doRequest(router, http.MethodGet, "/proj-key/products", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(router, http.MethodGet, "/proj-key/products/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCORSExposesSessionHeader(t *testing.T) {
	deps := testDeps()
	deps.CORSOrigins = []string{"https://shop.example"}
	router := newTestRouter(t, deps)

	rec := doRequest(router, http.MethodGet, "/proj-key/me/cart", "", map[string]string{"Origin": "https://shop.example"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://shop.example" {
		t.Fatalf("missing allow origin header: %v", rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), sessionHeader) {
		t.Fatalf("session header not exposed: %v", rec.Header())
	}
}
