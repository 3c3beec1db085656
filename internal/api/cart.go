package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  *int  `json:"quantity"`
}

// updateCartRequest requires quantity explicitly; an explicit zero or
// negative value removes the line.
type updateCartRequest struct {
	Quantity *int `json:"quantity"`
}

type cartResponse struct {
	Items []models.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

func (h *Handler) ListCart(c *gin.Context) {
	items, err := store.ListCart(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := cartResponse{Items: items, Total: decimal.Zero}
	if resp.Items == nil {
		resp.Items = []models.CartItem{}
	}
	for i := range items {
		resp.Total = resp.Total.Add(items[i].Subtotal())
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	item, err := store.AddToCart(c.Request.Context(), h.DB, userID(c), req.ProductID, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Quantity == nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "invalid_quantity", "quantity is required"))
		return
	}

	item, err := store.UpdateCartItem(c.Request.Context(), h.DB, userID(c), id, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"removed": true})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := store.RemoveCartItem(c.Request.Context(), h.DB, userID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearCart(c *gin.Context) {
	removed, err := store.ClearCart(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
