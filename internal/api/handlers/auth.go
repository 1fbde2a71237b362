package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

type AuthHandler struct {
	auth   *services.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger.With(zap.String("handler", "auth")),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) clientContext(c *gin.Context) services.ClientContext {
	return services.ClientContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fieldErrors(c, map[string]string{"body": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		fieldErrors(c, map[string]string{
			"email":    "email is required",
			"password": "password is required",
		})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.TOTPCode, h.clientContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if result.RequiresTwoFactor {
		c.JSON(http.StatusOK, gin.H{
			"requiresTwoFactor": true,
			"user":              result.Profile,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         result.Profile,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"expiresIn":    result.Tokens.ExpiresIn,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fieldErrors(c, map[string]string{"refreshToken": "refresh token is required"})
		return
	}
	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, h.clientContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         result.Profile,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"expiresIn":    result.Tokens.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	count, err := h.auth.Logout(c.Request.Context(), user.ID, req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": count})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := middleware.CurrentUser(c)
	count, err := h.auth.LogoutAll(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": count})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		fieldErrors(c, map[string]string{
			"oldPassword": "current password is required",
			"newPassword": "new password is required",
		})
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
