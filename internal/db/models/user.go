package models

import (
	"time"
)

type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleUser    UserRole = "USER"
	RoleViewer  UserRole = "VIEWER"
)

type UserStatus string

const (
	UserPending  UserStatus = "PENDING"
	UserActive   UserStatus = "ACTIVE"
	UserRejected UserStatus = "REJECTED"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FirstName    string
	LastName     string
	Role         UserRole   `gorm:"not null;default:'USER'"`
	Status       UserStatus `gorm:"not null;default:'PENDING'"`
	IsActive     bool       `gorm:"not null;default:true"`

	FailedLoginAttempts int `gorm:"not null;default:0"`
	LastFailedLoginAt   *time.Time
	LockedUntil         *time.Time

	TwoFactorEnabled        bool   `gorm:"not null;default:false"`
	TwoFactorSecret         string // set during setup, cleared on disable
	TwoFactorFailedAttempts int    `gorm:"not null;default:0"`
	TwoFactorLockedUntil    *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return u.FirstName + " " + u.LastName
}

// CanAuthenticate reports whether the account itself permits a login
// attempt. Lockout is checked separately so callers can report the
// remaining lock time.
func (u *User) CanAuthenticate() bool {
	return u.Status == UserActive && u.IsActive
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u *User) IsTwoFactorLocked(now time.Time) bool {
	return u.TwoFactorLockedUntil != nil && now.Before(*u.TwoFactorLockedUntil)
}
