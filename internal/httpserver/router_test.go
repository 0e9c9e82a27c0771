package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront/internal/catalog"
	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository/memory"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/checkout"
	ordersvc "storefront/internal/service/order"
	"storefront/internal/service/session"
)

const (
	testAdminSecret   = "admin-secret"
	testWebhookSecret = "whsec_test"
)

type testEnv struct {
	router     *gin.Engine
	store      *memory.Store
	catalog    *memory.Catalog
	provider   *fakeProvider
	adminToken string
}

// fakeProvider stands in for Stripe behind the real payment service.
type fakeProvider struct {
	refunds int
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, order *domain.Order) (*payment.Session, error) {
	return &payment.Session{ID: "cs_" + order.OrderNumber, URL: "https://pay.test/" + order.OrderNumber}, nil
}

func (p *fakeProvider) Refund(_ context.Context, _ *domain.Order) (*payment.Refund, error) {
	p.refunds++
	return &payment.Refund{ID: "re_1", Status: "succeeded"}, nil
}

func newTestEnv(t *testing.T, sessions *session.Manager) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	cat := memory.NewCatalog(
		domain.Product{ID: "prod-a", Slug: "tallow-balm", Name: "Tallow Balm", Price: 2000, InStock: true},
		domain.Product{ID: "prod-b", Slug: "lip-balm", Name: "Lip Balm", Price: 1500, InStock: true},
	)
	carts := store.Carts()
	writer := ordersvc.NewWriter(carts, store.Orders(), cat, ordersvc.Config{Pricing: pricing.Default()}, nil)
	orders := ordersvc.NewService(store.Orders(), nil)
	provider := &fakeProvider{}
	admin := session.NewAdmin(testAdminSecret)
	deps := Deps{
		CartSvc:     cartsvc.New(carts, time.Hour, nil),
		CheckoutSvc: checkout.New(writer, sessions, nil),
		OrderSvc:    orders,
		PaymentSvc:  payment.NewService(orders, provider, payment.NewWebhookVerifier(testWebhookSecret, 0), nil),
		Catalog:     catalog.Guard(cat),
		Admin:       admin,
	}
	if sessions != nil {
		deps.Sessions = sessions
	}
	router, err := buildRouter(zap.NewNop(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	token, err := admin.Issue("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	return &testEnv{router: router, store: store, catalog: cat, provider: provider, adminToken: token}
}

func (e *testEnv) adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.adminToken}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestBuildRouter_RequiresServices(t *testing.T) {
	if _, err := buildRouter(zap.NewNop(), nil, Deps{}); err == nil {
		t.Fatalf("expected error for missing services")
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without db, got %d", rec.Code)
	}
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func TestReadyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ok", readyHandler(stubPinger{}))
	router.GET("/down", readyHandler(stubPinger{err: errors.New("refused")}))

	for path, want := range map[string]int{"/ok": http.StatusOK, "/down": http.StatusServiceUnavailable} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, rec.Code)
		}
	}
}

func TestProducts(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/products", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 2 {
		t.Fatalf("expected 2 products, got %d", list.Total)
	}

	if rec := env.do(t, http.MethodGet, "/products/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	env.catalog.SetError(errors.New("cms down"))
	if rec := env.do(t, http.MethodGet, "/products", "", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

type stubCatalog struct {
	err error
}

func (s stubCatalog) List(context.Context) ([]domain.Product, error) {
	return nil, s.err
}

func (s stubCatalog) GetProductByID(context.Context, string) (*domain.Product, error) {
	return nil, s.err
}

func TestWriteError_Statuses(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.NewValidationError("quantity", "is required"), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrEmptyCart, http.StatusConflict},
		{domain.ErrUnresolvableItems, http.StatusConflict},
		{domain.ErrCartNotActive, http.StatusConflict},
		{domain.ErrInvalidToken, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{payment.ErrInvalidSignature, http.StatusBadRequest},
		{domain.ErrCatalogUnavailable, http.StatusBadGateway},
		{domain.ErrOrderCreationFailed, http.StatusInternalServerError},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		h := &handlers{logger: zap.NewNop(), deps: Deps{Catalog: stubCatalog{err: tc.err}}}
		router := gin.New()
		router.GET("/products", h.listProducts)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		if tc.code == http.StatusInternalServerError && bytes.Contains(rec.Body.Bytes(), []byte("connection refused")) {
			t.Fatalf("internal error details leaked: %s", rec.Body.String())
		}
	}
}
