// Package api exposes the storefront over HTTP with gin.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/currency"
	"go.uber.org/zap"
)

type Deps struct {
	DB        *sql.DB
	Checkout  *checkout.Service
	Converter *currency.Converter
	Issuer    *auth.Issuer
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger

	// ConfirmationURL is the page the payment return redirects to.
	ConfirmationURL string
	ReturnPath      string
	// ProxySecret authenticates the identity proxy on /api/auth/oauth; an
	// empty value disables the endpoint.
	ProxySecret string
}

type Handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	h := &Handler{Deps: d}
	if h.ReturnPath == "" {
		h.ReturnPath = "/retorno-webpay"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(d.Logger))

	router.GET("/health", h.Health)
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	requireUser := RequireAuth(d.Issuer)

	router.POST("/iniciar-pago", requireUser, h.StartCheckout)
	router.GET(h.ReturnPath, h.PaymentReturn)
	router.POST(h.ReturnPath, h.PaymentReturn)

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/oauth", h.OAuthLogin)

		api.GET("/categories", h.ListCategories)
		api.POST("/categories", requireUser, RequireAdmin(), h.CreateCategory)

		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.POST("/products", requireUser, RequireAdmin(), h.CreateProduct)
		api.PUT("/products/:id", requireUser, RequireAdmin(), h.UpdateProduct)
		api.PATCH("/products/:id/stock", requireUser, RequireAdmin(), h.SetProductStock)
		api.DELETE("/products/:id", requireUser, RequireAdmin(), h.DeleteProduct)

		cart := api.Group("/cart", requireUser)
		cart.GET("", h.ListCart)
		cart.POST("/add", h.AddToCart)
		cart.PUT("/update/:id", h.UpdateCartItem)
		cart.DELETE("/remove/:id", h.RemoveCartItem)
		cart.DELETE("/clear", h.ClearCart)

		orders := api.Group("/orders", requireUser)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/payment", h.PaymentStatus)
		orders.POST("/:id/refund", RequireAdmin(), h.RefundOrder)

		api.POST("/convert", h.Convert)
		api.GET("/currencies", h.ListCurrencies)
	}

	return router
}

func (h *Handler) Health(c *gin.Context) {
	status := gin.H{"status": "healthy", "service": "storefront"}
	if err := h.DB.PingContext(c.Request.Context()); err != nil {
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "ok"
	c.JSON(http.StatusOK, status)
}
