package httpserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/service/session"
)

const checkoutBody = `{
	"cartId": "%s",
	"customerEmail": "buyer@example.com",
	"customerName": "Buyer",
	"shippingAddress": {"line1": "1 Main St", "city": "Austin", "state": "TX", "postalCode": "78701", "country": "US"},
	"useShippingAsBilling": true
}`

type orderBody struct {
	ID            string  `json:"id"`
	OrderNumber   string  `json:"orderNumber"`
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	ShippingCost  float64 `json:"shippingCost"`
	TotalAmount   float64 `json:"totalAmount"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"paymentStatus"`
	ShippedAt     *string `json:"shippedAt"`
	Items         []struct {
		ProductName     string  `json:"productName"`
		PriceAtPurchase float64 `json:"priceAtPurchase"`
		Quantity        int     `json:"quantity"`
	} `json:"items"`
	BillingAddress struct {
		City string `json:"city"`
	} `json:"billingAddress"`
}

func checkoutCart(t *testing.T, env *testEnv, cartID string, headers map[string]string) orderBody {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/orders", strings.Replace(checkoutBody, "%s", cartID, 1), headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var order orderBody
	decode(t, rec, &order)
	return order
}

func TestCreateOrder_EndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":2}`, nil)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-b","quantity":1}`, nil)

	order := checkoutCart(t, env, cartID, nil)
	if order.Subtotal != 55 || order.Tax != 5.5 || order.ShippingCost != 0 || order.TotalAmount != 60.5 {
		t.Fatalf("unexpected totals %+v", order)
	}
	if order.Status != "pending" || order.PaymentStatus != "pending" {
		t.Fatalf("unexpected statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if order.BillingAddress.City != "Austin" {
		t.Fatalf("expected billing copied from shipping, got %+v", order.BillingAddress)
	}

	rec := env.do(t, http.MethodGet, "/carts/"+cartID, "", nil)
	if !strings.Contains(rec.Body.String(), `"status":"converted"`) {
		t.Fatalf("expected converted cart, got %s", rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 adding to converted cart, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/orders/"+order.ID, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"totalAmount":60.50`) {
		t.Fatalf("unexpected order fetch %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrder_IgnoresClientTotals(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)

	body := strings.Replace(checkoutBody, `"useShippingAsBilling": true`, `"useShippingAsBilling": true, "totalAmount": 0.01, "subtotal": 0.01`, 1)
	rec := env.do(t, http.MethodPost, "/orders", strings.Replace(body, "%s", cartID, 1), nil)
	var order orderBody
	decode(t, rec, &order)
	if rec.Code != http.StatusCreated || order.TotalAmount != 32 {
		t.Fatalf("expected server-computed total 32.00, got %d %+v", rec.Code, order)
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)

	rec := env.do(t, http.MethodPost, "/orders", strings.Replace(checkoutBody, "%s", cartID, 1), nil)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "empty_cart") {
		t.Fatalf("expected 409 empty_cart, got %d %s", rec.Code, rec.Body.String())
	}
	if env.store.OrderCount() != 0 {
		t.Fatalf("expected no orders")
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/orders", `{"cartId":"x","customerEmail":"nope","shippingAddress":{}}`, nil)
	var body errorBody
	decode(t, rec, &body)
	if rec.Code != http.StatusBadRequest || body.Fields["customerEmail"] == "" || body.Fields["shippingAddress.line1"] == "" {
		t.Fatalf("expected field-level 400, got %d %+v", rec.Code, body)
	}
}

func TestCreateOrder_CatalogDown(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)
	env.catalog.SetError(errors.New("cms timeout"))

	rec := env.do(t, http.MethodPost, "/orders", strings.Replace(checkoutBody, "%s", cartID, 1), nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/carts/"+cartID, "", nil)
	if !strings.Contains(rec.Body.String(), `"status":"active"`) {
		t.Fatalf("expected cart to stay active, got %s", rec.Body.String())
	}
}

func TestCreateOrder_RequiresCartToken(t *testing.T) {
	env := newTestEnv(t, session.NewManager("s3cret", time.Hour))
	cartID, token := createCart(t, env)
	headers := map[string]string{cartTokenHeader: token}
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, headers)

	rec := env.do(t, http.MethodPost, "/orders", strings.Replace(checkoutBody, "%s", cartID, 1), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	checkoutCart(t, env, cartID, headers)
}

func TestOrderStatusUpdates(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)
	order := checkoutCart(t, env, cartID, nil)

	rec := env.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", `{"status":"shipped"}`, env.adminHeaders())
	var updated orderBody
	decode(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.Status != "shipped" || updated.ShippedAt == nil {
		t.Fatalf("unexpected status update %d %+v", rec.Code, updated)
	}
	if updated.TotalAmount != order.TotalAmount {
		t.Fatalf("status update must not change totals")
	}

	if rec := env.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", `{"status":"teleported"}`, env.adminHeaders()); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPatch, "/orders/"+order.ID+"/payment-status", `{"paymentStatus":"paid"}`, env.adminHeaders())
	decode(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment update %d %+v", rec.Code, updated)
	}
	if rec := env.do(t, http.MethodGet, "/orders/8f14e45f-ceea-467a-9af0-2b1c6f7e0d11", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBackOfficeRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)
	order := checkoutCart(t, env, cartID, nil)

	cartToken, _, _ := session.NewManager(testAdminSecret, time.Hour).Issue(cartID, nil)
	foreign, _ := session.NewAdmin("someone-else").Issue("x", time.Hour)
	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"cart token", map[string]string{"Authorization": "Bearer " + cartToken}, http.StatusUnauthorized},
		{"foreign admin token", map[string]string{"Authorization": "Bearer " + foreign}, http.StatusUnauthorized},
	}
	routes := []struct{ method, path, body string }{
		{http.MethodPatch, "/orders/" + order.ID + "/payment-status", `{"paymentStatus":"paid"}`},
		{http.MethodPatch, "/orders/" + order.ID + "/status", `{"status":"shipped"}`},
		{http.MethodPost, "/orders/" + order.ID + "/refund", ""},
	}
	for _, r := range routes {
		for _, tc := range cases {
			if rec := env.do(t, r.method, r.path, r.body, tc.headers); rec.Code != tc.want {
				t.Fatalf("%s %s as %s: expected %d, got %d", r.method, r.path, tc.name, tc.want, rec.Code)
			}
		}
	}

	stored, err := env.store.Orders().GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending || stored.Status != domain.OrderStatusPending {
		t.Fatalf("unauthenticated calls changed the order: %+v", stored)
	}
}

func TestBackOfficeDisabledWithoutAdminSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &handlers{logger: zap.NewNop(), deps: Deps{Admin: session.NewAdmin("")}}
	router := gin.New()
	router.PATCH("/orders/:orderId/payment-status", h.requireAdmin, h.updatePaymentStatus)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/orders/o1/payment-status", strings.NewReader(`{"paymentStatus":"paid"}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with admin disabled, got %d", rec.Code)
	}
}

func signWebhook(secret string, payload []byte) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)
	order := checkoutCart(t, env, cartID, nil)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid","metadata":{"order_id":"` + order.ID + `"}}}}`)

	forged := env.do(t, http.MethodPost, "/payments/webhook", string(payload), map[string]string{
		payment.SignatureHeader: signWebhook("whsec_attacker", payload),
	})
	if forged.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for forged signature, got %d", forged.Code)
	}
	if rec := env.do(t, http.MethodPost, "/payments/webhook", string(payload), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
	stored, _ := env.store.Orders().GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("forged webhook changed payment status to %s", stored.PaymentStatus)
	}

	rec := env.do(t, http.MethodPost, "/payments/webhook", string(payload), map[string]string{
		payment.SignatureHeader: signWebhook(testWebhookSecret, payload),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed webhook, got %d body=%s", rec.Code, rec.Body.String())
	}
	stored, _ = env.store.Orders().GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid after signed webhook, got %s", stored.PaymentStatus)
	}
}

func TestRefundOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	cartID, _ := createCart(t, env)
	_ = env.do(t, http.MethodPost, "/carts/"+cartID+"/items", `{"productId":"prod-a","quantity":1}`, nil)
	order := checkoutCart(t, env, cartID, nil)

	if rec := env.do(t, http.MethodPost, "/orders/"+order.ID+"/refund", "", env.adminHeaders()); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 refunding an unpaid order, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/orders/"+order.ID+"/payment-session", "", nil); rec.Code != http.StatusCreated {
		t.Fatalf("payment session: expected 201, got %d", rec.Code)
	}
	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"payment_status":"paid","metadata":{"order_id":"` + order.ID + `"}}}}`)
	if rec := env.do(t, http.MethodPost, "/payments/webhook", string(payload), map[string]string{
		payment.SignatureHeader: signWebhook(testWebhookSecret, payload),
	}); rec.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/orders/"+order.ID+"/refund", "", env.adminHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	stored, _ := env.store.Orders().GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusRefunded || env.provider.refunds != 1 {
		t.Fatalf("expected refunded order, got %s after %d refunds", stored.PaymentStatus, env.provider.refunds)
	}
}

type stubPayments struct {
	err error
}

func (s stubPayments) StartSession(_ context.Context, _ string) (*payment.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
}

func (s stubPayments) HandleWebhook(_ context.Context, _ []byte, _ string) error {
	return s.err
}

func (s stubPayments) Refund(_ context.Context, _ string) (*payment.Refund, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Refund{ID: "re_1", Status: "succeeded"}, nil
}

func TestPaymentSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	disabled := &handlers{logger: zap.NewNop()}
	router := gin.New()
	router.POST("/orders/:orderId/payment-session", disabled.createPaymentSession)
	router.POST("/payments/webhook", disabled.paymentWebhook)
	for _, path := range []string{"/orders/x/payment-session", "/payments/webhook"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503 without payment service, got %d", path, rec.Code)
		}
	}

	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusCreated},
		{payment.ErrProvider, http.StatusBadGateway},
		{payment.ErrNotConfigured, http.StatusServiceUnavailable},
		{domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		h := &handlers{logger: zap.NewNop(), deps: Deps{PaymentSvc: stubPayments{err: tc.err}}}
		router := gin.New()
		router.POST("/orders/:orderId/payment-session", h.createPaymentSession)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/o1/payment-session", nil))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}
