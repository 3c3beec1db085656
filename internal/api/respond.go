package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/currency"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/store"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{store.ErrUnauthenticated, apiError{http.StatusUnauthorized, "unauthenticated", "authentication required"}},
	{auth.ErrInvalidToken, apiError{http.StatusUnauthorized, "unauthenticated", "authentication required"}},
	{auth.ErrInvalidCredentials, apiError{http.StatusUnauthorized, "invalid_credentials", "invalid username or password"}},
	{database.ErrUserNotFound, apiError{http.StatusNotFound, "not_found", "user not found"}},
	{database.ErrCategoryNotFound, apiError{http.StatusNotFound, "not_found", "category not found"}},
	{database.ErrProductNotFound, apiError{http.StatusNotFound, "not_found", "product not found"}},
	{database.ErrCartItemNotFound, apiError{http.StatusNotFound, "not_found", "cart item not found"}},
	{database.ErrOrderNotFound, apiError{http.StatusNotFound, "not_found", "order not found"}},
	{database.ErrTransactionNotFound, apiError{http.StatusNotFound, "not_found", "transaction not found"}},
	{store.ErrInvalidQuantity, apiError{http.StatusBadRequest, "invalid_quantity", "quantity must be greater than zero"}},
	{database.ErrInsufficientStock, apiError{http.StatusBadRequest, "insufficient_stock", "not enough stock"}},
	{checkout.ErrEmptyCart, apiError{http.StatusBadRequest, "empty_cart", "cart is empty"}},
	{checkout.ErrInvalidAmount, apiError{http.StatusBadRequest, "invalid_amount", "invalid refund amount"}},
	{checkout.ErrNotRefundable, apiError{http.StatusConflict, "invalid_state", "order has no completed payment"}},
	{checkout.ErrNoPaymentRecord, apiError{http.StatusConflict, "invalid_state", "order has no payment transaction"}},
	{database.ErrDuplicateUser, apiError{http.StatusConflict, "duplicate_user", "username or email already registered"}},
	{store.ErrOptimisticLockFailed, apiError{http.StatusConflict, "conflict", "resource was modified concurrently"}},
	{currency.ErrInvalidAmount, apiError{http.StatusBadRequest, "invalid_amount", "amount must be greater than zero"}},
	{currency.ErrUnsupportedCurrency, apiError{http.StatusBadRequest, "unsupported_currency", "unsupported currency"}},
	{currency.ErrRateUnavailable, apiError{http.StatusInternalServerError, "rate_unavailable", "exchange rate unavailable"}},
}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.apiError
		}
	}

	var validation *store.ValidationError
	if errors.As(err, &validation) {
		return apiError{http.StatusBadRequest, "invalid_request", validation.Error()}
	}
	if payment.IsGatewayError(err) {
		return apiError{http.StatusInternalServerError, "payment_gateway_error", "payment gateway error"}
	}

	return apiError{http.StatusInternalServerError, "internal", "internal server error"}
}

func errorBody(c *gin.Context, code, message string) gin.H {
	return gin.H{
		"error":      message,
		"code":       code,
		"request_id": c.GetString(requestIDKey),
	}
}

func respondError(c *gin.Context, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(e.status, errorBody(c, e.code, e.message))
}

func abortWithError(c *gin.Context, err error) {
	e := classify(err)
	c.AbortWithStatusJSON(e.status, errorBody(c, e.code, e.message))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(c, "invalid_request", message))
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
