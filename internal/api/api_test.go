package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/currency"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedRate struct{}

func (fixedRate) LatestRate(ctx context.Context, c currency.Currency) (*currency.Rate, error) {
	return &currency.Rate{
		Value: decimal.RequireFromString("941.37"),
		Date:  time.Date(2024, 5, 22, 0, 0, 0, 0, time.UTC),
	}, nil
}

func newTestRouter(t *testing.T, d Deps) (*gin.Engine, *auth.Issuer) {
	t.Helper()
	if d.Issuer == nil {
		d.Issuer = auth.NewIssuer("test-secret", time.Hour)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Converter == nil {
		d.Converter = currency.NewConverter(fixedRate{}, nil, nil, d.Logger)
	}
	return NewRouter(d), d.Issuer
}

func do(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestRequireAuth(t *testing.T) {
	router, issuer := newTestRouter(t, Deps{})

	w := do(router, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decode(t, w)["code"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(router, http.MethodPost, "/iniciar-pago", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := issuer.Issue(auth.Identity{UserID: 5})
	require.NoError(t, err)

	w = do(router, http.MethodPost, "/api/products", token, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode(t, w)["code"])
}

func TestUpdateCartRequiresQuantity(t *testing.T) {
	router, issuer := newTestRouter(t, Deps{})
	token, _, err := issuer.Issue(auth.Identity{UserID: 5})
	require.NoError(t, err)

	w := do(router, http.MethodPut, "/api/cart/update/1", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_quantity", decode(t, w)["code"])

	w = do(router, http.MethodPut, "/api/cart/update/1", token, map[string]any{"quantity": "two"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode(t, w)["code"])
}

func TestConvert(t *testing.T) {
	router, _ := newTestRouter(t, Deps{})

	w := do(router, http.MethodPost, "/api/convert", "", map[string]any{"amount": 10, "currency": "USD"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, 9413.7, body["amount_clp"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, "2024-05-22", body["date"])
}

func TestConvertErrors(t *testing.T) {
	router, _ := newTestRouter(t, Deps{})

	tests := []struct {
		name string
		body any
		code string
	}{
		{name: "zero amount", body: map[string]any{"amount": 0, "currency": "USD"}, code: "invalid_amount"},
		{name: "unknown currency", body: map[string]any{"amount": 5, "currency": "GBP"}, code: "unsupported_currency"},
		{name: "missing currency", body: map[string]any{"amount": 5}, code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/convert", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestListCurrencies(t *testing.T) {
	router, _ := newTestRouter(t, Deps{})

	w := do(router, http.MethodGet, "/api/currencies", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 4)
	assert.Equal(t, "UTM", list[3]["code"])
}

func TestOAuthRequiresProxySecret(t *testing.T) {
	router, _ := newTestRouter(t, Deps{ProxySecret: "s3cret"})

	w := do(router, http.MethodPost, "/api/auth/oauth", "", map[string]any{"email": "a@example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{fmt.Errorf("wrapped: %w", database.ErrProductNotFound), http.StatusNotFound, "not_found"},
		{database.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
		{store.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{checkout.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
		{&payment.Error{Op: "create", Message: "boom"}, http.StatusInternalServerError, "payment_gateway_error"},
		{currency.ErrRateUnavailable, http.StatusInternalServerError, "rate_unavailable"},
		{&store.ValidationError{Err: errors.New("name required")}, http.StatusBadRequest, "invalid_request"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.status)
			assert.Equal(t, tt.code, got.code)
		})
	}
}

func TestConfirmationURL(t *testing.T) {
	h := &Handler{Deps: Deps{ConfirmationURL: "https://shop.example.com/comprobante-pago"}}

	got := h.confirmationURL(checkout.ReturnOutcome{Status: checkout.ReturnSuccess, OrderID: 12})
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/comprobante-pago", u.Path)
	assert.Equal(t, "success", u.Query().Get("status"))
	assert.Equal(t, "12", u.Query().Get("order_id"))

	got = (&Handler{}).confirmationURL(checkout.ReturnOutcome{Status: checkout.ReturnError})
	assert.True(t, strings.HasPrefix(got, "/comprobante-pago?"))
	assert.NotContains(t, got, "order_id")
}
