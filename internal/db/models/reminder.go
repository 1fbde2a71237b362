package models

import "time"

type ReminderType string

const (
	ReminderExpiration ReminderType = "EXPIRATION"
	ReminderRenewal    ReminderType = "RENEWAL"
	ReminderCustom     ReminderType = "CUSTOM"
)

// Reminder is a scheduled notice tied to a contract. IsSent flips false to
// true exactly once, by the dispatcher, and never reverses.
type Reminder struct {
	ID           uint         `gorm:"primaryKey"`
	Type         ReminderType `gorm:"size:16;not null;default:'CUSTOM'"`
	ReminderDate time.Time    `gorm:"index;not null"`
	Message      string
	IsSent       bool     `gorm:"not null;default:false"`
	ContractID   uint     `gorm:"index;not null"`
	Contract     Contract `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
}
