package models

import "time"

// RefreshToken stores one session credential. Only the SHA-256 hash of the
// opaque token value is persisted; the raw value goes back to the client once.
type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"`
	TokenHash string `gorm:"size:64;uniqueIndex;not null"`
	UserID    uint   `gorm:"index;not null"`
	User      User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	IPAddress string
	UserAgent string
	IssuedAt  time.Time  `gorm:"not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	RevokedAt *time.Time `gorm:"index"`
}

func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
