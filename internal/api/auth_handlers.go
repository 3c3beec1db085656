package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"go.uber.org/zap"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=80"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type oauthRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := store.CreateUser(c.Request.Context(), h.DB, req.Username, req.Email, hash)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Logger.Info("User registered", zap.Int64("user_id", user.ID))
	h.respondToken(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := store.GetUserByLogin(c.Request.Context(), h.DB, req.Login)
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil || !user.IsActive {
		respondError(c, auth.ErrInvalidCredentials)
		return
	}

	h.respondToken(c, http.StatusOK, user)
}

// OAuthLogin accepts an identity already verified by the upstream identity
// proxy, creating the account on first sight.
func (h *Handler) OAuthLogin(c *gin.Context) {
	secret := c.GetHeader("X-Proxy-Secret")
	if h.ProxySecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.ProxySecret)) != 1 {
		respondError(c, auth.ErrInvalidToken)
		return
	}

	var req oauthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	placeholder, err := auth.PlaceholderHash()
	if err != nil {
		respondError(c, err)
		return
	}

	user, created, err := store.FindOrCreateOAuthUser(c.Request.Context(), h.DB, req.Email, req.Name, placeholder)
	if err != nil {
		respondError(c, err)
		return
	}
	if !user.IsActive {
		respondError(c, auth.ErrInvalidCredentials)
		return
	}

	if created {
		h.Logger.Info("User created from external identity", zap.Int64("user_id", user.ID))
	}
	h.respondToken(c, http.StatusOK, user)
}

func (h *Handler) respondToken(c *gin.Context, status int, user *models.User) {
	token, expires, err := h.Issuer.Issue(auth.Identity{UserID: user.ID, IsAdmin: user.IsAdmin})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}
