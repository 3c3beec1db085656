package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/currency"
	"github.com/shopspring/decimal"
)

type convertRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" binding:"required"`
}

func (h *Handler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount and currency are required")
		return
	}

	result, err := h.Converter.Convert(c.Request.Context(), req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListCurrencies(c *gin.Context) {
	c.JSON(http.StatusOK, currency.Currencies())
}
