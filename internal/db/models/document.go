package models

import "time"

// Document is one stored file version attached to a contract.
// MimeType holds the detected content type, not the one claimed by the client.
type Document struct {
	ID             uint   `gorm:"primaryKey"`
	Filename       string `gorm:"not null"`
	OriginalName   string `gorm:"not null;index:idx_documents_contract_name"`
	MimeType       string `gorm:"not null"`
	Size           int64  `gorm:"not null"`
	StorageKey     string `gorm:"not null"`
	Version        int    `gorm:"not null;default:1"`
	IsMainDocument bool   `gorm:"not null;default:false"`
	Checksum       string `gorm:"size:64;not null"`
	ContractID     uint   `gorm:"index;not null;index:idx_documents_contract_name"`
	Contract       Contract `gorm:"foreignKey:ContractID"`
	UploadedByID   uint   `gorm:"index"`

	DeletedAt   *time.Time `gorm:"index"`
	DeletedByID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Document) IsDeleted() bool {
	return d.DeletedAt != nil
}
