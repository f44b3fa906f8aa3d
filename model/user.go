package model

import (
	"time"

	"gorm.io/gorm"
)

// User is a realm-scoped principal. LockedUntil is nil for unlocked
// accounts; a far-future timestamp marks a permanent lock.
type User struct {
	ID            uint   `gorm:"primarykey"`
	RealmID       uint   `gorm:"not null;index:idx_realm_username,unique;index:idx_realm_email,unique"`
	Username      string `gorm:"size:64;not null;index:idx_realm_username,unique"`
	Email         string `gorm:"size:256;not null;index:idx_realm_email,unique"`
	FullName      string `gorm:"size:128;not null"`
	PasswordHash  string `gorm:"size:128;not null"`
	Enabled       bool   `gorm:"default:true;not null"`
	EmailVerified bool   `gorm:"default:false;not null"`
	TOTPSecret    string `gorm:"size:128;not null;default:''"`
	LockedUntil   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}
