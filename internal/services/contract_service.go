package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

// contractTransitions is the allowed status graph. Anything absent is a
// conflict.
var contractTransitions = map[models.ContractStatus][]models.ContractStatus{
	models.ContractDraft:      {models.ContractActive},
	models.ContractActive:     {models.ContractTerminated, models.ContractExpired},
	models.ContractTerminated: {models.ContractArchived},
	models.ContractExpired:    {models.ContractArchived},
}

type ContractInput struct {
	Title       string
	Description string
	PartnerID   *uint
	StartDate   *time.Time
	EndDate     *time.Time
}

type ContractService struct {
	db        *gorm.DB
	cfg       config.ContractsConfig
	audit     *AuditService
	reminders *ReminderService
	logger    *zap.Logger
	metrics   *metrics.Collector
}

func NewContractService(
	database *gorm.DB,
	cfg config.ContractsConfig,
	audit *AuditService,
	reminders *ReminderService,
	logger *zap.Logger,
	collector *metrics.Collector,
) *ContractService {
	return &ContractService{
		db:        database,
		cfg:       cfg,
		audit:     audit,
		reminders: reminders,
		logger:    logger.With(zap.String("service", "contract_service")),
		metrics:   collector,
	}
}

// Create assigns the next gapless number for the current year and stores the
// contract as DRAFT. An end date set at creation time already generates the
// reminder ladder.
func (cs *ContractService) Create(ctx context.Context, ownerID uint, input ContractInput, actx AuditContext) (*models.Contract, error) {
	if input.Title == "" {
		return nil, Conflict("contract title is required")
	}

	var contract models.Contract
	year := time.Now().Year()
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, year)
		if err != nil {
			return err
		}
		contract = models.Contract{
			ContractNumber: fmt.Sprintf("%s-%d-%04d", cs.cfg.NumberPrefix, year, seq),
			Title:          input.Title,
			Description:    input.Description,
			Status:         models.ContractDraft,
			PartnerID:      input.PartnerID,
			OwnerID:        ownerID,
			StartDate:      input.StartDate,
			EndDate:        input.EndDate,
		}
		return tx.Create(&contract).Error
	})
	if err != nil {
		return nil, err
	}

	if contract.EndDate != nil {
		if err := cs.reminders.GenerateLadder(ctx, &contract); err != nil {
			cs.logger.Error("failed to generate reminder ladder",
				zap.Error(err),
				zap.Uint("contract_id", contract.ID))
		}
	}
	cs.metrics.IncrementCounter("contracts.created", nil)
	cs.logger.Info("contract created",
		zap.Uint("contract_id", contract.ID),
		zap.String("number", contract.ContractNumber))
	return &contract, nil
}

// nextSequence advances the per-year counter with a single atomic upsert so
// concurrent creates in the same year get distinct, gapless values.
func nextSequence(tx *gorm.DB, year int) (int, error) {
	var counter int
	err := tx.Raw(
		`INSERT INTO contract_sequences (year, counter) VALUES (?, 1)
		 ON CONFLICT (year) DO UPDATE SET counter = contract_sequences.counter + 1
		 RETURNING counter`,
		year,
	).Scan(&counter).Error
	if err != nil {
		return 0, fmt.Errorf("advance contract sequence for %d: %w", year, err)
	}
	return counter, nil
}

func (cs *ContractService) Get(ctx context.Context, id uint) (*models.Contract, error) {
	var contract models.Contract
	err := cs.db.WithContext(ctx).Preload("Partner").First(&contract, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("contract not found")
		}
		return nil, err
	}
	return &contract, nil
}

// UpdateStatus performs a lifecycle transition and audits it with explicitly
// captured old and new values.
func (cs *ContractService) UpdateStatus(ctx context.Context, id uint, next models.ContractStatus, actx AuditContext) (*models.Contract, error) {
	var contract models.Contract
	if err := cs.db.WithContext(ctx).First(&contract, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("contract not found")
		}
		return nil, err
	}

	if !transitionAllowed(contract.Status, next) {
		return nil, Conflict("cannot transition contract from %s to %s", contract.Status, next)
	}
	old := contract.Status
	if err := cs.db.WithContext(ctx).Model(&contract).Update("status", next).Error; err != nil {
		return nil, err
	}
	contract.Status = next

	cs.audit.Record(ctx, AuditEntry{
		Action:     models.AuditUpdate,
		EntityType: "Contract",
		EntityID:   formatID(contract.ID),
		OldValue:   map[string]any{"status": old},
		NewValue:   map[string]any{"status": next},
		ContractID: &contract.ID,
	}, actx)
	cs.logger.Info("contract status changed",
		zap.Uint("contract_id", contract.ID),
		zap.String("from", string(old)),
		zap.String("to", string(next)))
	return &contract, nil
}

// SetEndDate establishes or moves the end date and regenerates the
// expiration reminder ladder for dates still in the future.
func (cs *ContractService) SetEndDate(ctx context.Context, id uint, endDate time.Time, actx AuditContext) (*models.Contract, error) {
	var contract models.Contract
	if err := cs.db.WithContext(ctx).First(&contract, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("contract not found")
		}
		return nil, err
	}

	oldEnd := contract.EndDate
	if err := cs.db.WithContext(ctx).Model(&contract).Update("end_date", endDate).Error; err != nil {
		return nil, err
	}
	contract.EndDate = &endDate

	// Unsent auto-generated reminders for the old date are stale now.
	err := cs.db.WithContext(ctx).
		Where("contract_id = ? AND type = ? AND is_sent = ?", contract.ID, models.ReminderExpiration, false).
		Delete(&models.Reminder{}).Error
	if err != nil {
		return nil, err
	}
	if err := cs.reminders.GenerateLadder(ctx, &contract); err != nil {
		cs.logger.Error("failed to generate reminder ladder",
			zap.Error(err),
			zap.Uint("contract_id", contract.ID))
	}

	cs.audit.Record(ctx, AuditEntry{
		Action:     models.AuditUpdate,
		EntityType: "Contract",
		EntityID:   formatID(contract.ID),
		OldValue:   map[string]any{"endDate": oldEnd},
		NewValue:   map[string]any{"endDate": endDate},
		ContractID: &contract.ID,
	}, actx)
	return &contract, nil
}

func transitionAllowed(from, to models.ContractStatus) bool {
	for _, allowed := range contractTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
