package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/mailer"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/scheduler"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/storage"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/logger"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := db.Migrate(database); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	store, err := storage.NewDiskStore(cfg.Storage.DataDir)
	if err != nil {
		zapLogger.Fatal("Failed to initialize document storage", zap.Error(err))
	}

	collector := metrics.NewCollector()
	sender := mailer.NewSender(cfg.SMTP, zapLogger)

	auditService := services.NewAuditService(database, zapLogger, collector)
	tokenService := services.NewTokenService(database, cfg.Auth, zapLogger, collector)
	totpEngine := services.NewTOTPEngine(cfg.Auth.TOTPIssuer)
	authService := services.NewAuthService(database, cfg.Auth, tokenService, totpEngine, sender, auditService, zapLogger, collector)
	reminderService := services.NewReminderService(database, sender, cfg.BaseURL, zapLogger, collector)
	contractService := services.NewContractService(database, cfg.Contracts, auditService, reminderService, zapLogger, collector)
	documentService := services.NewDocumentService(database, store, auditService, zapLogger, collector)
	retentionService := services.NewRetentionService(database, store, auditService, cfg.Storage.RetentionDays, zapLogger, collector)

	verifier, err := middleware.NewIdentityVerifier(cfg.Auth, tokenService)
	if err != nil {
		zapLogger.Fatal("Failed to initialize identity verifier", zap.Error(err))
	}

	router, err := api.NewRouter(api.RouterDeps{
		Config:    &cfg,
		Logger:    zapLogger,
		Metrics:   collector,
		Audit:     auditService,
		Auth:      authService,
		Tokens:    tokenService,
		Contracts: contractService,
		Documents: documentService,
		Reminders: reminderService,
		Retention: retentionService,
		Verifier:  verifier,
		DB:        database,
	})
	if err != nil {
		zapLogger.Fatal("Failed to initialize router", zap.Error(err))
	}
	router.SetupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := scheduler.New(cfg.Jobs.DailyHourUTC, zapLogger,
		scheduler.Job{Name: "reminder_dispatch", Run: func(ctx context.Context) error {
			_, err := reminderService.RunDispatch(ctx)
			return err
		}},
		scheduler.Job{Name: "retention_sweep", Run: func(ctx context.Context) error {
			_, err := retentionService.RunSweep(ctx)
			return err
		}},
		scheduler.Job{Name: "token_cleanup", Run: func(ctx context.Context) error {
			_, err := tokenService.CleanupExpired(ctx)
			return err
		}},
	)
	jobs.Start(ctx)
	defer jobs.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Forced shutdown", zap.Error(err))
	}

	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}
