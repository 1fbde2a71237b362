package models

import "time"

type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractActive     ContractStatus = "ACTIVE"
	ContractTerminated ContractStatus = "TERMINATED"
	ContractExpired    ContractStatus = "EXPIRED"
	ContractArchived   ContractStatus = "ARCHIVED"
)

type Contract struct {
	ID             uint           `gorm:"primaryKey"`
	ContractNumber string         `gorm:"uniqueIndex;not null"`
	Title          string         `gorm:"not null"`
	Description    string
	Status         ContractStatus `gorm:"not null;default:'DRAFT'"`
	PartnerID      *uint          `gorm:"index"`
	Partner        *Partner       `gorm:"foreignKey:PartnerID"`
	OwnerID        uint           `gorm:"index;not null"`
	Owner          User           `gorm:"foreignKey:OwnerID"`
	StartDate      *time.Time
	EndDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContractSequence backs the per-year gapless contract number generator.
// The counter is advanced with a single atomic upsert.
type ContractSequence struct {
	Year    int `gorm:"primaryKey"`
	Counter int `gorm:"not null;default:0"`
}
