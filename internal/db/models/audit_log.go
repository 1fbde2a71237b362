package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditCreate   AuditAction = "CREATE"
	AuditRead     AuditAction = "READ"
	AuditUpdate   AuditAction = "UPDATE"
	AuditDelete   AuditAction = "DELETE"
	AuditDownload AuditAction = "DOWNLOAD"
	AuditExport   AuditAction = "EXPORT"
)

// AuditLog is an append-only fact record. Application code never updates
// or deletes rows of this table.
type AuditLog struct {
	ID          uint        `gorm:"primaryKey"`
	Action      AuditAction `gorm:"size:16;not null"`
	EntityType  string      `gorm:"size:64;not null;index"`
	EntityID    string      `gorm:"size:64;index"`
	ActorUserID *uint       `gorm:"index"`
	OldValue    datatypes.JSON
	NewValue    datatypes.JSON
	IPAddress   string
	UserAgent   string
	ContractID  *uint `gorm:"index"`
	DocumentID  *uint `gorm:"index"`
	CreatedAt   time.Time
}
