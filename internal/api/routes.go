package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/handlers"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

type Router struct {
	engine          *gin.Engine
	logger          *zap.Logger
	metrics         *metrics.Collector
	audit           *services.AuditService
	authHandler     *handlers.AuthHandler
	twoFAHandler    *handlers.TwoFactorHandler
	userHandler     *handlers.UserHandler
	contractHandler *handlers.ContractHandler
	docHandler      *handlers.DocumentHandler
	jobHandler      *handlers.JobHandler
	authMiddleware  *middleware.AuthMiddleware
	reqMiddleware   *middleware.RequestMiddleware
}

type RouterDeps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Audit     *services.AuditService
	Auth      *services.AuthService
	Tokens    *services.TokenService
	Contracts *services.ContractService
	Documents *services.DocumentService
	Reminders *services.ReminderService
	Retention *services.RetentionService
	Verifier  middleware.IdentityVerifier
	DB        *gorm.DB
}

func NewRouter(deps RouterDeps) (*Router, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		return nil, err
	}

	reqMiddleware := middleware.NewRequestMiddleware(deps.Logger)
	authMiddleware := middleware.NewAuthMiddleware(deps.Verifier, deps.DB)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())

	return &Router{
		engine:          engine,
		logger:          deps.Logger,
		metrics:         deps.Metrics,
		audit:           deps.Audit,
		authHandler:     handlers.NewAuthHandler(deps.Auth, deps.Logger),
		twoFAHandler:    handlers.NewTwoFactorHandler(deps.Auth, deps.Logger),
		userHandler:     handlers.NewUserHandler(deps.Auth, deps.Logger),
		contractHandler: handlers.NewContractHandler(deps.Contracts, deps.Logger),
		docHandler:      handlers.NewDocumentHandler(deps.Documents, deps.Logger),
		jobHandler:      handlers.NewJobHandler(deps.Reminders, deps.Retention, deps.Tokens, deps.Logger),
		authMiddleware:  authMiddleware,
		reqMiddleware:   reqMiddleware,
	}, nil
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "dk-vertragsmgmt"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.Counters(),
			"latencies": r.metrics.Latencies(),
		})
	})

	v1 := r.engine.Group("/api/v1")

	v1.POST("/auth/login", r.authHandler.Login)
	v1.POST("/auth/refresh", r.authHandler.Refresh)
	v1.POST("/users/register",
		middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditCreate, EntityType: "user"}),
		r.userHandler.Register)

	authorized := v1.Group("/")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.POST("/auth/logout", r.authHandler.Logout)
		authorized.POST("/auth/logout-all", r.authHandler.LogoutAll)
		authorized.POST("/auth/change-password", r.authHandler.ChangePassword)

		authorized.POST("/auth/2fa/setup", r.twoFAHandler.Setup)
		authorized.POST("/auth/2fa/enable", r.twoFAHandler.Enable)
		authorized.POST("/auth/2fa/disable", r.twoFAHandler.Disable)
		authorized.GET("/auth/2fa/status", r.twoFAHandler.Status)

		authorized.GET("/users/me", r.userHandler.Me)

		authorized.GET("/contracts/:id",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditRead, EntityType: "contract"}),
			r.contractHandler.Get)
		authorized.GET("/documents/:id/download",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditDownload, EntityType: "document"}),
			r.docHandler.Download)
	}

	managers := v1.Group("/")
	managers.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireRole(models.RoleAdmin, models.RoleManager))
	{
		managers.POST("/contracts",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditCreate, EntityType: "contract"}),
			r.contractHandler.Create)
		// Status changes and end date updates are audited inside the
		// service with old and new snapshots.
		managers.PUT("/contracts/:id/status", r.contractHandler.UpdateStatus)
		managers.PUT("/contracts/:id/end-date", r.contractHandler.SetEndDate)

		managers.POST("/contracts/:id/documents",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditCreate, EntityType: "document"}),
			r.docHandler.Upload)
		managers.DELETE("/documents/:id",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditDelete, EntityType: "document"}),
			r.docHandler.Delete)
	}

	admins := v1.Group("/")
	admins.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireRole(models.RoleAdmin))
	{
		admins.POST("/users",
			middleware.CaptureAudit(r.audit, middleware.AuditRoute{Action: models.AuditCreate, EntityType: "user"}),
			r.userHandler.Create)
		// Registration decisions are audited inside the service with the
		// status transition as old and new value.
		admins.POST("/users/:id/approve", r.userHandler.Approve)
		admins.POST("/users/:id/reject", r.userHandler.Reject)

		admins.DELETE("/documents/:id/purge", r.docHandler.Purge)

		admins.POST("/jobs/reminders/run", r.jobHandler.RunReminderDispatch)
		admins.POST("/jobs/retention/run", r.jobHandler.RunRetentionSweep)
		admins.POST("/jobs/tokens/cleanup", r.jobHandler.RunTokenCleanup)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
