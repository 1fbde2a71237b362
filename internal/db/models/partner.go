package models

import "time"

// Partner is a registered business partner contracts are made with.
type Partner struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string
	Phone        string
	Address      string
	ContactName  string
	CreatedByID  uint `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
