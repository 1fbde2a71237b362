package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/storage"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

const systemAccountEmail = "system@internal"

// RetentionService hard-deletes soft-deleted documents once they are older
// than the retention window.
type RetentionService struct {
	db            *gorm.DB
	store         storage.Store
	audit         *AuditService
	logger        *zap.Logger
	metrics       *metrics.Collector
	retentionDays int
}

func NewRetentionService(database *gorm.DB, store storage.Store, audit *AuditService, retentionDays int, logger *zap.Logger, collector *metrics.Collector) *RetentionService {
	return &RetentionService{
		db:            database,
		store:         store,
		audit:         audit,
		logger:        logger.With(zap.String("service", "retention_service")),
		metrics:       collector,
		retentionDays: retentionDays,
	}
}

// RunSweep purges every document soft-deleted before the cutoff. Documents
// are processed independently so one failure does not block the rest; a
// single summary audit row attributed to the system account records the
// tallies.
func (rs *RetentionService) RunSweep(ctx context.Context) (JobResult, error) {
	start := time.Now()
	defer func() {
		rs.metrics.ObserveLatency("jobs.retention_sweep", time.Since(start))
	}()

	cutoff := time.Now().AddDate(0, 0, -rs.retentionDays)
	var expired []models.Document
	err := rs.db.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&expired).Error
	if err != nil {
		return JobResult{}, fmt.Errorf("query expired documents: %w", err)
	}
	if len(expired) == 0 {
		return JobResult{}, nil
	}

	result := JobResult{}
	for _, doc := range expired {
		if err := rs.purge(ctx, &doc); err != nil {
			result.Failed++
			rs.logger.Warn("failed to purge document",
				zap.Error(err),
				zap.Uint("document_id", doc.ID))
			continue
		}
		result.Processed++
	}

	actorID, err := rs.systemAccountID(ctx)
	if err != nil {
		rs.logger.Error("failed to resolve system account", zap.Error(err))
	} else {
		rs.audit.Record(ctx, AuditEntry{
			Action:     models.AuditDelete,
			EntityType: "Document",
			NewValue: map[string]any{
				"purged":        result.Processed,
				"failed":        result.Failed,
				"retentionDays": rs.retentionDays,
			},
		}, AuditContext{ActorID: &actorID})
	}

	rs.metrics.AddCounter("documents.purged", int64(result.Processed))
	rs.logger.Info("retention sweep finished",
		zap.Int("purged", result.Processed),
		zap.Int("failed", result.Failed))
	return result, nil
}

// purge removes the stored bytes first, then the row. Missing bytes are
// tolerated so a retried sweep converges.
func (rs *RetentionService) purge(ctx context.Context, doc *models.Document) error {
	if err := rs.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete bytes: %w", err)
	}
	if err := rs.db.WithContext(ctx).Delete(&models.Document{}, doc.ID).Error; err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}

// systemAccountID lazily creates the deactivated account sweep audits are
// attributed to. IsActive=false keeps it permanently unable to log in.
func (rs *RetentionService) systemAccountID(ctx context.Context) (uint, error) {
	var user models.User
	err := rs.db.WithContext(ctx).Where("email = ?", systemAccountEmail).First(&user).Error
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	user = models.User{
		Email:        systemAccountEmail,
		PasswordHash: "!", // not a valid bcrypt hash, no password matches
		FirstName:    "System",
		Role:         models.RoleAdmin,
		Status:       models.UserActive,
		IsActive:     false,
	}
	if err := rs.db.WithContext(ctx).Create(&user).Error; err != nil {
		return 0, err
	}
	rs.logger.Info("system account created", zap.Uint("user_id", user.ID))
	return user.ID, nil
}
