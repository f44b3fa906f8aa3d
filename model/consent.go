package model

import (
	"time"

	"gorm.io/gorm"
)

// ConsentRecord stores the scope set a user granted to a client.
// Re-granting replaces the set wholesale, it never unions.
type ConsentRecord struct {
	ID       uint   `gorm:"primarykey"`
	RealmID  uint   `gorm:"not null"`
	UserID   uint   `gorm:"not null;index:idx_consent_user_client,unique"`
	ClientID uint   `gorm:"not null;index:idx_consent_user_client,unique"`
	Scopes   string `gorm:"size:1024;not null"` // space separated

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *ConsentRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}
