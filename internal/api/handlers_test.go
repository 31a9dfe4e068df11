package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/discount"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/pricing"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
	"github.com/example/ec-checkout/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
	jwt     *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewMemoryStore()
	sessions := session.NewMemoryStore(time.Hour)
	cfg := pricing.DefaultConfig()

	carts := cart.NewService(s, sessions)
	selector := discount.NewSelector(discount.NewValidator(s), sessions)
	h := NewHandlers(
		product.NewService(s),
		carts,
		selector,
		checkout.NewService(s, carts, selector, cfg),
		order.NewService(s),
		cfg,
	)
	jwtService := auth.NewJWTService("test-secret-key-for-testing-purposes", time.Hour)

	ctx := context.Background()
	for _, p := range []model.Product{
		{ID: "p-widget", Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 3},
		{ID: "p-gadget", Name: "Gadget", Price: decimal.RequireFromString("60.00"), Stock: 10},
	} {
		p := p
		require.NoError(t, s.CreateProduct(ctx, &p))
	}
	_, err := discount.NewValidator(s).Create(ctx, discount.CreateParams{Code: "TENOFF", Percent: decimal.NewFromInt(10)})
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(h, RouterConfig{Verifier: jwtService, SessionTTL: time.Hour}),
		store:   s,
		jwt:     jwtService,
	}
}

// client carries a session cookie and, for identified users, a bearer token.
type client struct {
	srv     *testServer
	session string
	token   string
}

func (ts *testServer) anonymous() *client {
	return &client{srv: ts, session: uuid.New().String()}
}

func (ts *testServer) user(t *testing.T, id string) *client {
	t.Helper()
	token, _, err := ts.jwt.Issue(id, id+"@example.com")
	require.NoError(t, err)
	return &client{srv: ts, session: uuid.New().String(), token: token}
}

func (c *client) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookieName, Value: c.session})
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.srv.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type cartView struct {
	Lines []struct {
		Product  model.Product `json:"product"`
		Quantity int           `json:"quantity"`
	} `json:"lines"`
	Discount *session.Discount `json:"discount"`
	Summary  pricing.Summary   `json:"summary"`
}

// ============================================
// Catalog Tests
// ============================================

func TestHandlers_Products(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()

	rec := c.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]model.Product](t, rec)
	assert.Len(t, products, 2)
	assert.Contains(t, rec.Body.String(), `"price":"10.00"`)

	rec = c.do(t, http.MethodGet, "/api/v1/products/p-widget", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Widget", decode[model.Product](t, rec).Name)

	rec = c.do(t, http.MethodGet, "/api/v1/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_Health(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_IssuesSessionCookie(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, mw.SessionCookieName, cookies[0].Name)
}

// ============================================
// Cart Tests
// ============================================

func TestHandlers_AnonymousCart(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()

	rec := c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": "1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decode[cartView](t, rec)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)
	assert.Equal(t, "20.00", view.Summary.Subtotal.StringFixed(2))
	assert.Equal(t, "32.00", view.Summary.FinalTotal.StringFixed(2))

	rec = c.do(t, http.MethodPut, "/api/v1/cart/items/p-widget", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[cartView](t, rec).Lines[0].Quantity)

	rec = c.do(t, http.MethodDelete, "/api/v1/cart/items/p-widget", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartView](t, rec).Lines)
}

func TestHandlers_InvalidQuantity(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()

	for _, qty := range []any{0, -1, "abc", 1.5, nil} {
		rec := c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": qty})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "quantity %v", qty)
		assert.Equal(t, "invalid_quantity", decode[ErrorResponse](t, rec).Error)
	}
}

func TestHandlers_InvalidBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_InsufficientStock(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()

	rec := c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 5})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", resp.Error)
	assert.Equal(t, "p-widget", resp.ProductID)
}

func TestHandlers_IdentifiedViewWithoutCart(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")

	rec := c.do(t, http.MethodGet, "/api/v1/cart", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_active_cart", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_ClearCart(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")
	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 2}).Code)

	rec := c.do(t, http.MethodDelete, "/api/v1/cart/items", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartView](t, rec).Lines)
}

// ============================================
// Discount Tests
// ============================================

func TestHandlers_ApplyDiscount(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()
	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 2}).Code)

	rec := c.do(t, http.MethodPut, "/api/v1/cart/discount", map[string]string{"code": "tenoff"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[cartView](t, rec)
	require.NotNil(t, view.Discount)
	assert.Equal(t, "TENOFF", view.Discount.Code)
	assert.Equal(t, "29.80", view.Summary.FinalTotal.StringFixed(2))

	rec = c.do(t, http.MethodDelete, "/api/v1/cart/discount", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	view = decode[cartView](t, c.do(t, http.MethodGet, "/api/v1/cart", nil))
	assert.Nil(t, view.Discount)
}

func TestHandlers_ApplyDiscount_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	_, err := discount.NewValidator(ts.store).Create(ctx, discount.CreateParams{Code: "OLD", Percent: decimal.NewFromInt(5), ExpiresAt: &past})
	require.NoError(t, err)
	c := ts.anonymous()

	rec := c.do(t, http.MethodPut, "/api/v1/cart/discount", map[string]string{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "invalid_discount_code", decode[ErrorResponse](t, rec).Error)

	rec = c.do(t, http.MethodPut, "/api/v1/cart/discount", map[string]string{"code": "OLD"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "expired_or_exhausted_discount", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_ApplyDiscount_NoActiveCartStoresNothing(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "newcomer")

	rec := c.do(t, http.MethodPut, "/api/v1/cart/discount", map[string]string{"code": "TENOFF"})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Equal(t, "no_active_cart", decode[ErrorResponse](t, rec).Error)

	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 1}).Code)
	rec = c.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[cartView](t, rec)
	assert.Nil(t, view.Discount)
	assert.True(t, view.Summary.DiscountAmount.IsZero())
	assert.Equal(t, "21.00", view.Summary.FinalTotal.StringFixed(2))
}

// ============================================
// Named Cart Tests
// ============================================

func TestHandlers_NamedCarts(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")

	rec := c.do(t, http.MethodPost, "/api/v1/carts", map[string]string{"name": "Birthday"})
	require.Equal(t, http.StatusCreated, rec.Code)
	birthday := decode[model.Cart](t, rec)
	assert.True(t, birthday.Active)

	rec = c.do(t, http.MethodPost, "/api/v1/carts", map[string]string{"name": "Groceries"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = c.do(t, http.MethodPost, "/api/v1/carts/"+birthday.ID+"/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(t, http.MethodGet, "/api/v1/carts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	carts := decode[[]model.Cart](t, rec)
	require.Len(t, carts, 2)
	active := 0
	for _, ct := range carts {
		if ct.Active {
			active++
			assert.Equal(t, birthday.ID, ct.ID)
		}
	}
	assert.Equal(t, 1, active)

	rec = c.do(t, http.MethodPost, "/api/v1/carts", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := ts.user(t, "bob")
	rec = other.do(t, http.MethodPost, "/api/v1/carts/"+birthday.ID+"/select", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_RequireAuth(t *testing.T) {
	ts := newTestServer(t)
	c := ts.anonymous()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/carts"},
		{http.MethodPost, "/api/v1/checkout"},
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders/some-id"},
	} {
		rec := c.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

// ============================================
// Checkout Tests
// ============================================

func TestHandlers_CheckoutFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")

	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-gadget", "quantity": 2}).Code)

	rec := c.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[order.Receipt](t, rec)
	assert.Equal(t, "132.00", receipt.Order.Total.StringFixed(2))
	assert.Contains(t, rec.Body.String(), `"total":"132.00"`)
	assert.Contains(t, rec.Body.String(), `"price_at_purchase":"60.00"`)
	assert.Equal(t, "/api/v1/orders/"+receipt.Order.ID, rec.Header().Get("Location"))

	rec = c.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]model.Order](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.Order.ID, orders[0].ID)

	rec = c.do(t, http.MethodGet, "/api/v1/orders/"+receipt.Order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[order.Receipt](t, rec)
	require.Len(t, detail.Lines, 1)
	assert.Equal(t, "60.00", detail.Lines[0].PriceAtPurchase.StringFixed(2))

	rec = ts.user(t, "bob").do(t, http.MethodGet, "/api/v1/orders/"+receipt.Order.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(t, http.MethodPost, "/api/v1/checkout", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_active_cart", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_CheckoutEmptyCart(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")
	require.Equal(t, http.StatusCreated, c.do(t, http.MethodPost, "/api/v1/carts", map[string]string{"name": "Empty"}).Code)

	rec := c.do(t, http.MethodPost, "/api/v1/checkout", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Error)
}

func TestHandlers_CheckoutInsufficientStock(t *testing.T) {
	ts := newTestServer(t)
	c := ts.user(t, "alice")
	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "p-widget", "quantity": 3}).Code)
	ok, err := ts.store.DecrementStock(context.Background(), "p-widget", 2)
	require.NoError(t, err)
	require.True(t, ok)

	rec := c.do(t, http.MethodPost, "/api/v1/checkout", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", resp.Error)
	assert.Equal(t, "p-widget", resp.ProductID)
}
