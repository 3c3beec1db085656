package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := store.ListCategories(c.Request.Context(), h.DB)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	category, err := store.CreateCategory(c.Request.Context(), h.DB, req.Name, req.Description, req.Icon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

type productRequest struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Image          string              `json:"image"`
	Price          decimal.Decimal     `json:"price"`
	IsFeatured     bool                `json:"is_featured"`
	IsPromotion    bool                `json:"is_promotion"`
	PromotionPrice decimal.NullDecimal `json:"promotion_price"`
	Stock          int                 `json:"stock"`
	CategoryID     *int64              `json:"category_id"`
	// Version enables the optimistic check on update; zero skips it.
	Version int `json:"version"`
}

func (r productRequest) input() store.ProductInput {
	return store.ProductInput{
		Name:           r.Name,
		Description:    r.Description,
		Image:          r.Image,
		Price:          r.Price,
		IsFeatured:     r.IsFeatured,
		IsPromotion:    r.IsPromotion,
		PromotionPrice: r.PromotionPrice,
		Stock:          r.Stock,
		CategoryID:     r.CategoryID,
	}
}

func (h *Handler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	page, pageSize = store.NormalizePage(page, pageSize)

	var filter store.ProductFilter
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	filter.FeaturedOnly = c.Query("featured") == "true"
	filter.PromoOnly = c.Query("promotion") == "true"

	result, err := store.ListProducts(c.Request.Context(), h.DB, filter, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := store.GetProduct(c.Request.Context(), h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	product, err := store.CreateProduct(c.Request.Context(), h.DB, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	product, err := store.UpdateProduct(c.Request.Context(), h.DB, id, req.input(), req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type stockRequest struct {
	Stock   *int `json:"stock" binding:"required"`
	Version int  `json:"version" binding:"required"`
}

// SetProductStock adjusts only the stock level, guarded by the product
// version the caller last read.
func (h *Handler) SetProductStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := store.UpdateStockOptimistic(ctx, h.DB, id, *req.Stock, req.Version); err != nil {
		respondError(c, err)
		return
	}

	product, err := store.GetProduct(ctx, h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := store.DeleteProduct(c.Request.Context(), h.DB, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
