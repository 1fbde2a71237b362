package services

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

// AuditContext carries the actor and client metadata of the request (or job)
// that caused a change. It is passed explicitly; services never reach into
// ambient request state.
type AuditContext struct {
	ActorID   *uint
	IPAddress string
	UserAgent string
}

// AuditEntry describes one immutable change record before persistence.
// OldValue and NewValue are marshalled to JSON snapshots.
type AuditEntry struct {
	Action     models.AuditAction
	EntityType string
	EntityID   string
	OldValue   any
	NewValue   any
	ContractID *uint
	DocumentID *uint
}

// AuditService appends rows to the append-only audit log. Record never
// returns an error to the caller: a failed audit write is logged and
// swallowed so it cannot fail the operation it describes.
type AuditService struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewAuditService(database *gorm.DB, logger *zap.Logger, collector *metrics.Collector) *AuditService {
	return &AuditService{
		db:      database,
		logger:  logger.With(zap.String("service", "audit_service")),
		metrics: collector,
	}
}

func (as *AuditService) Record(ctx context.Context, entry AuditEntry, actx AuditContext) {
	row := models.AuditLog{
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		ActorUserID: actx.ActorID,
		OldValue:    marshalSnapshot(entry.OldValue),
		NewValue:    marshalSnapshot(entry.NewValue),
		IPAddress:   actx.IPAddress,
		UserAgent:   actx.UserAgent,
		ContractID:  entry.ContractID,
		DocumentID:  entry.DocumentID,
	}
	if err := as.db.WithContext(ctx).Create(&row).Error; err != nil {
		as.metrics.IncrementCounter("audit.write_failures", nil)
		as.logger.Error("audit write failed",
			zap.Error(err),
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID))
		return
	}
	as.metrics.IncrementCounter("audit.records_written", nil)
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func marshalSnapshot(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
