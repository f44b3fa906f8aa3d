package model

import (
	"time"

	"gorm.io/gorm"
)

// LoginFailure is an append-only record of a failed authentication
// attempt. Rows are only created and bulk-deleted by the retention
// sweep, never updated.
type LoginFailure struct {
	ID        uint      `gorm:"primarykey,autoIncrement"`
	RealmID   uint      `gorm:"not null;index:idx_failure_user"`
	UserID    uint      `gorm:"not null;index:idx_failure_user"`
	IPAddress string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (f *LoginFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == 0 {
		f.ID = GenerateID()
	}
	return nil
}
