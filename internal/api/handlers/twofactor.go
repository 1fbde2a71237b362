package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

type TwoFactorHandler struct {
	auth   *services.AuthService
	logger *zap.Logger
}

func NewTwoFactorHandler(auth *services.AuthService, logger *zap.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		auth:   auth,
		logger: logger.With(zap.String("handler", "twofactor")),
	}
}

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) Setup(c *gin.Context) {
	user := middleware.CurrentUser(c)
	setup, err := h.auth.SetupTwoFactor(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

func (h *TwoFactorHandler) Enable(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var req twoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		fieldErrors(c, map[string]string{"code": "verification code is required"})
		return
	}
	client := services.ClientContext{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if err := h.auth.EnableTwoFactor(c.Request.Context(), user.ID, req.Code, client); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TwoFactorHandler) Disable(c *gin.Context) {
	user := middleware.CurrentUser(c)
	var req twoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		fieldErrors(c, map[string]string{"code": "verification code is required"})
		return
	}
	client := services.ClientContext{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if err := h.auth.DisableTwoFactor(c.Request.Context(), user.ID, req.Code, client); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TwoFactorHandler) Status(c *gin.Context) {
	user := middleware.CurrentUser(c)
	enabled, err := h.auth.TwoFactorStatus(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}
