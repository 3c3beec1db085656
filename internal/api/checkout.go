package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/shopspring/decimal"
)

func (h *Handler) StartCheckout(c *gin.Context) {
	result, err := h.Checkout.Start(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PaymentReturn receives the shopper back from the gateway. Parameters may
// arrive as form fields (POST) or query values (GET).
func (h *Handler) PaymentReturn(c *gin.Context) {
	params := checkout.ReturnParams{
		TokenWS:     formOrQuery(c, "token_ws"),
		TBKToken:    formOrQuery(c, "TBK_TOKEN"),
		TBKBuyOrder: formOrQuery(c, "TBK_ORDEN_COMPRA"),
	}

	outcome := h.Checkout.Return(c.Request.Context(), params)

	c.Redirect(http.StatusSeeOther, h.confirmationURL(outcome))
}

func formOrQuery(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func (h *Handler) confirmationURL(outcome checkout.ReturnOutcome) string {
	q := url.Values{}
	q.Set("status", outcome.Status)
	if outcome.OrderID != 0 {
		q.Set("order_id", strconv.FormatInt(outcome.OrderID, 10))
	}

	target := h.ConfirmationURL
	if target == "" {
		target = "/comprobante-pago"
	}
	return target + "?" + q.Encode()
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) RefundOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	result, err := h.Checkout.Refund(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) PaymentStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := h.Checkout.PaymentStatus(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
