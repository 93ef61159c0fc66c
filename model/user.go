package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an account that can sign in. Only admins author or ingest questions;
// everyone else reads published exams.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"type:varchar(254);uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Name         string         `gorm:"type:varchar(120);not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'user'" json:"role"`
	Status       string         `gorm:"type:varchar(20);default:'active'" json:"status"`
	// TokenVersion is embedded in every token; bumping it logs the user out everywhere
	TokenVersion int `gorm:"default:0" json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive treats an unset status as active
func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == UserStatusActive
}
