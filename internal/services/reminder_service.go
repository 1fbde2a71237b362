package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/mailer"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

// ladderOffsets are the days before a contract's end date at which
// auto-generated expiration reminders fire.
var ladderOffsets = []int{90, 60, 30, 14, 7}

// JobResult is the outcome of one scheduled or manually triggered run.
type JobResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type ReminderService struct {
	db      *gorm.DB
	sender  mailer.Sender
	logger  *zap.Logger
	metrics *metrics.Collector
	baseURL string
}

func NewReminderService(database *gorm.DB, sender mailer.Sender, baseURL string, logger *zap.Logger, collector *metrics.Collector) *ReminderService {
	return &ReminderService{
		db:      database,
		sender:  sender,
		logger:  logger.With(zap.String("service", "reminder_service")),
		metrics: collector,
		baseURL: baseURL,
	}
}

// GenerateLadder bulk-inserts expiration reminders at the ladder offsets
// before the contract's end date, discarding candidates already in the past.
func (rs *ReminderService) GenerateLadder(ctx context.Context, contract *models.Contract) error {
	if contract.EndDate == nil {
		return nil
	}
	now := time.Now()
	reminders := make([]models.Reminder, 0, len(ladderOffsets))
	for _, days := range ladderOffsets {
		candidate := contract.EndDate.AddDate(0, 0, -days)
		if !candidate.After(now) {
			continue
		}
		reminders = append(reminders, models.Reminder{
			Type:         models.ReminderExpiration,
			ReminderDate: candidate,
			Message:      fmt.Sprintf("Contract %s expires in %d days", contract.ContractNumber, days),
			ContractID:   contract.ID,
		})
	}
	if len(reminders) == 0 {
		return nil
	}
	if err := rs.db.WithContext(ctx).Create(&reminders).Error; err != nil {
		return err
	}
	rs.logger.Info("reminder ladder generated",
		zap.Uint("contract_id", contract.ID),
		zap.Int("count", len(reminders)))
	return nil
}

// CreateCustom stores an explicit user-created reminder.
func (rs *ReminderService) CreateCustom(ctx context.Context, contractID uint, kind models.ReminderType, date time.Time, message string) (*models.Reminder, error) {
	var contract models.Contract
	if err := rs.db.WithContext(ctx).First(&contract, contractID).Error; err != nil {
		return nil, NotFound("contract not found")
	}
	reminder := models.Reminder{
		Type:         kind,
		ReminderDate: date,
		Message:      message,
		ContractID:   contractID,
	}
	if err := rs.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		return nil, err
	}
	return &reminder, nil
}

// RunDispatch sends every due, unsent reminder whose contract is ACTIVE.
// Send failures are logged per reminder and do not abort the batch; one
// bulk update afterwards marks exactly the successfully sent ids, so a
// failed send is retried on the next run.
func (rs *ReminderService) RunDispatch(ctx context.Context) (JobResult, error) {
	start := time.Now()
	defer func() {
		rs.metrics.ObserveLatency("jobs.reminder_dispatch", time.Since(start))
	}()

	var due []models.Reminder
	err := rs.db.WithContext(ctx).
		Joins("JOIN contracts ON contracts.id = reminders.contract_id").
		Where("reminders.reminder_date <= ? AND reminders.is_sent = ? AND contracts.status = ?",
			time.Now(), false, models.ContractActive).
		Preload("Contract").
		Preload("Contract.Owner").
		Find(&due).Error
	if err != nil {
		return JobResult{}, fmt.Errorf("query due reminders: %w", err)
	}
	if len(due) == 0 {
		return JobResult{}, nil
	}

	result := JobResult{}
	sentIDs := make([]uint, 0, len(due))
	for _, reminder := range due {
		if err := rs.dispatchOne(ctx, &reminder); err != nil {
			result.Failed++
			rs.logger.Warn("reminder email failed",
				zap.Error(err),
				zap.Uint("reminder_id", reminder.ID),
				zap.Uint("contract_id", reminder.ContractID))
			continue
		}
		result.Processed++
		sentIDs = append(sentIDs, reminder.ID)
	}

	if len(sentIDs) > 0 {
		err := rs.db.WithContext(ctx).Model(&models.Reminder{}).
			Where("id IN ?", sentIDs).
			Update("is_sent", true).Error
		if err != nil {
			return result, fmt.Errorf("mark reminders sent: %w", err)
		}
	}
	rs.metrics.AddCounter("reminders.sent", int64(result.Processed))
	rs.logger.Info("reminder dispatch finished",
		zap.Int("sent", result.Processed),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (rs *ReminderService) dispatchOne(ctx context.Context, reminder *models.Reminder) error {
	contract := reminder.Contract
	if contract.Owner.Email == "" {
		return fmt.Errorf("contract %d has no owner email", contract.ID)
	}
	daysLeft := 0
	if contract.EndDate != nil {
		daysLeft = int(time.Until(*contract.EndDate).Hours() / 24)
		if daysLeft < 0 {
			daysLeft = 0
		}
	}
	link := fmt.Sprintf("%s/contracts/%d", rs.baseURL, contract.ID)
	msg := mailer.ContractExpiring(contract.Owner.Email, contract.Title, contract.ContractNumber, daysLeft, link)
	return rs.sender.Send(ctx, msg)
}
