package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/storage"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/utils"
	"github.com/nigeier/dk-vertragsmgmt-sub000/pkg/metrics"
)

// allowedMimePrefixes gates uploads on the detected content type.
var allowedMimePrefixes = []string{
	"application/pdf",
	"application/zip",
	"application/octet-stream",
	"application/msword",
	"application/vnd.openxmlformats-officedocument",
	"image/",
	"text/",
}

type DocumentService struct {
	db      *gorm.DB
	store   storage.Store
	audit   *AuditService
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewDocumentService(database *gorm.DB, store storage.Store, audit *AuditService, logger *zap.Logger, collector *metrics.Collector) *DocumentService {
	return &DocumentService{
		db:      database,
		store:   store,
		audit:   audit,
		logger:  logger.With(zap.String("service", "document_service")),
		metrics: collector,
	}
}

// Upload validates the real content type, assigns the next version for
// (contract, original name), writes the bytes and creates the row. Setting
// isMain unsets the flag on every other document of the contract.
func (ds *DocumentService) Upload(ctx context.Context, contractID uint, originalName string, content []byte, uploadedBy uint, isMain bool) (*models.Document, error) {
	start := time.Now()

	var contract models.Contract
	if err := ds.db.WithContext(ctx).First(&contract, contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("contract not found")
		}
		return nil, err
	}

	mimeType := utils.DetectContentType(content)
	if !mimeAllowed(mimeType) {
		return nil, Conflict("unsupported content type %s", mimeType)
	}

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])
	filename := generatedFilename(originalName)

	doc := models.Document{
		Filename:       filename,
		OriginalName:   originalName,
		MimeType:       mimeType,
		Size:           int64(len(content)),
		StorageKey:     filename,
		IsMainDocument: isMain,
		Checksum:       checksum,
		ContractID:     contractID,
		UploadedByID:   uploadedBy,
	}

	err := ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		err := tx.Model(&models.Document{}).
			Where("contract_id = ? AND original_name = ?", contractID, originalName).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error
		if err != nil {
			return err
		}
		doc.Version = maxVersion + 1

		if isMain {
			err := tx.Model(&models.Document{}).
				Where("contract_id = ? AND is_main_document = ?", contractID, true).
				Update("is_main_document", false).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(&doc).Error
	})
	if err != nil {
		return nil, err
	}

	if _, err := ds.store.Put(ctx, doc.StorageKey, bytes.NewReader(content)); err != nil {
		// Roll the row back so no record points at missing bytes.
		ds.db.WithContext(ctx).Delete(&models.Document{}, doc.ID)
		return nil, fmt.Errorf("store document bytes: %w", err)
	}

	ds.metrics.IncrementCounter("documents.uploaded", nil)
	ds.metrics.ObserveLatency("documents.upload", time.Since(start))
	ds.logger.Info("document uploaded",
		zap.Uint("document_id", doc.ID),
		zap.Uint("contract_id", contractID),
		zap.Int("version", doc.Version),
		zap.String("mime_type", mimeType))
	return &doc, nil
}

// Open returns the document row and a reader over its stored bytes.
func (ds *DocumentService) Open(ctx context.Context, id uint) (*models.Document, io.ReadCloser, error) {
	var doc models.Document
	if err := ds.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NotFound("document not found")
		}
		return nil, nil, err
	}
	if doc.IsDeleted() {
		return nil, nil, NotFound("document not found")
	}
	r, err := ds.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document bytes: %w", err)
	}
	return &doc, r, nil
}

// SoftDelete marks a document deleted. The bytes stay until the retention
// sweeper purges them.
func (ds *DocumentService) SoftDelete(ctx context.Context, id uint, deletedBy uint) error {
	var doc models.Document
	if err := ds.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("document not found")
		}
		return err
	}
	if doc.IsDeleted() {
		return Conflict("document is already deleted")
	}
	now := time.Now()
	return ds.db.WithContext(ctx).Model(&doc).Updates(map[string]any{
		"deleted_at":    now,
		"deleted_by_id": deletedBy,
	}).Error
}

// PermanentDelete removes bytes and row immediately. Admin only.
func (ds *DocumentService) PermanentDelete(ctx context.Context, id uint, actx AuditContext) error {
	var doc models.Document
	if err := ds.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("document not found")
		}
		return err
	}
	if err := ds.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete document bytes: %w", err)
	}
	if err := ds.db.WithContext(ctx).Delete(&models.Document{}, doc.ID).Error; err != nil {
		return err
	}
	ds.audit.Record(ctx, AuditEntry{
		Action:     models.AuditDelete,
		EntityType: "Document",
		EntityID:   formatID(doc.ID),
		OldValue:   map[string]any{"filename": doc.OriginalName, "version": doc.Version},
		ContractID: &doc.ContractID,
	}, actx)
	ds.logger.Info("document permanently deleted", zap.Uint("document_id", doc.ID))
	return nil
}

func mimeAllowed(mimeType string) bool {
	for _, prefix := range allowedMimePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

func generatedFilename(originalName string) string {
	ext := filepath.Ext(originalName)
	return uuid.New().String() + strings.ToLower(ext)
}
