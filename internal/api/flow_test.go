package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/dbtest"
	"github.com/safar/go-storefront/internal/notify"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type approvingGateway struct{}

func (approvingGateway) Create(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	return &payment.CreateResult{Token: "T1", RedirectURL: "https://pay/x"}, nil
}

func (approvingGateway) Commit(ctx context.Context, token string) (*payment.Confirmation, error) {
	return &payment.Confirmation{ResponseCode: 0, Amount: decimal.NewFromInt(8000), CardLast4: "6623"}, nil
}

func (approvingGateway) Status(ctx context.Context, token string) (*payment.Confirmation, error) {
	return &payment.Confirmation{ResponseCode: 0, Status: "AUTHORIZED", Amount: decimal.NewFromInt(8000)}, nil
}

func (approvingGateway) Refund(ctx context.Context, token string, amount decimal.Decimal) (*payment.RefundResult, error) {
	return &payment.RefundResult{Type: "REVERSED"}, nil
}

func TestCheckoutFlow(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()

	product, err := store.CreateProduct(ctx, db, store.ProductInput{
		Name:           "Martillo",
		Price:          decimal.NewFromInt(10000),
		IsPromotion:    true,
		PromotionPrice: decimal.NewNullDecimal(decimal.NewFromInt(8000)),
		Stock:          3,
	})
	require.NoError(t, err)

	svc := checkout.NewService(db, approvingGateway{}, notify.NewLogSink(logger), nil, logger, checkout.Options{
		ReturnURL:      "http://localhost/retorno-webpay",
		BuyOrderPrefix: "OC-",
	})
	router, issuer := newTestRouter(t, Deps{DB: db, Checkout: svc, ConfirmationURL: "/comprobante-pago"})

	w := do(router, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "buyer", "email": "buyer@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/auth/login", "", map[string]any{"login": "buyer@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["token"].(string)

	w = do(router, http.MethodPost, "/api/auth/login", "", map[string]any{"login": "buyer", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/iniciar-pago", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_cart", decode(t, w)["code"])

	w = do(router, http.MethodPost, "/api/cart/add", token, map[string]any{"product_id": product.ID, "quantity": 4})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_stock", decode(t, w)["code"])

	w = do(router, http.MethodPost, "/api/cart/add", token, map[string]any{"product_id": product.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	itemID := int64(decode(t, w)["id"].(float64))

	w = do(router, http.MethodPut, fmt.Sprintf("/api/cart/update/%d", itemID), token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_quantity", decode(t, w)["code"])

	w = do(router, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "8000", decode(t, w)["total"])

	w = do(router, http.MethodPost, "/iniciar-pago", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode(t, w)
	assert.Equal(t, "T1", start["token"])
	assert.Equal(t, "https://pay/x", start["redirect_url"])

	form := url.Values{"token_ws": {"T1"}}
	req := httptest.NewRequest(http.MethodPost, "/retorno-webpay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "success", loc.Query().Get("status"))

	w = do(router, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "completed", items[0].(map[string]any)["status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/retorno-webpay?token_ws=nope", nil))
	loc, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "error", loc.Query().Get("status"))

	adminToken, _, err := issuer.Issue(auth.Identity{UserID: 1, IsAdmin: true})
	require.NoError(t, err)
	stockPath := fmt.Sprintf("/api/products/%d/stock", product.ID)

	w = do(router, http.MethodPatch, stockPath, token, map[string]any{"stock": 10, "version": product.Version})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPatch, stockPath, adminToken, map[string]any{"version": product.Version})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPatch, stockPath, adminToken, map[string]any{"stock": 10, "version": product.Version})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)
	assert.EqualValues(t, 10, updated["stock"])
	assert.EqualValues(t, product.Version+1, updated["version"])

	w = do(router, http.MethodPatch, stockPath, adminToken, map[string]any{"stock": 0, "version": product.Version})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode(t, w)["code"])

	w = do(router, http.MethodPatch, "/api/products/9999/stock", adminToken, map[string]any{"stock": 1, "version": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
