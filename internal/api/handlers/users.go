package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

type UserHandler struct {
	auth   *services.AuthService
	logger *zap.Logger
}

func NewUserHandler(auth *services.AuthService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		auth:   auth,
		logger: logger.With(zap.String("handler", "users")),
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type createUserRequest struct {
	registerRequest
	Role models.UserRole `json:"role"`
}

// Register is the self-service path: the account waits in PENDING until an
// admin decides.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fieldErrors(c, map[string]string{"body": "invalid request body"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.AuditEntityIDKey, strconv.FormatUint(uint64(user.ID), 10))
	c.JSON(http.StatusCreated, gin.H{
		"id":     user.ID,
		"email":  user.Email,
		"status": user.Status,
	})
}

// Create is the admin path: the account starts ACTIVE with a chosen role.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fieldErrors(c, map[string]string{"body": "invalid request body"})
		return
	}
	role := req.Role
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleUser, models.RoleViewer:
	default:
		role = models.RoleUser
	}
	user, err := h.auth.CreateUser(c.Request.Context(), req.Email, req.Password, req.FirstName, req.LastName, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.AuditEntityIDKey, strconv.FormatUint(uint64(user.ID), 10))
	c.JSON(http.StatusCreated, gin.H{
		"id":     user.ID,
		"email":  user.Email,
		"role":   user.Role,
		"status": user.Status,
	})
}

func (h *UserHandler) Approve(c *gin.Context) {
	h.decide(c, h.auth.Approve)
}

func (h *UserHandler) Reject(c *gin.Context) {
	h.decide(c, h.auth.Reject)
}

func (h *UserHandler) decide(c *gin.Context, fn func(ctx context.Context, userID uint, actx services.AuditContext) error) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), id, auditContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"firstName":        user.FirstName,
		"lastName":         user.LastName,
		"role":             user.Role,
		"twoFactorEnabled": user.TwoFactorEnabled,
	})
}
