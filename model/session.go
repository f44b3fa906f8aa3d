package model

import (
	"time"

	"gorm.io/gorm"
)

// Session binds an authenticated principal to a client. Every token
// minted under a grant references the session; revoking the session
// invalidates the whole rotation chain.
type Session struct {
	ID        uint   `gorm:"primarykey"`
	SID       string `gorm:"size:64;not null;uniqueIndex"`
	RealmID   uint   `gorm:"not null;index"`
	UserID    uint   `gorm:"not null;index"`
	ClientID  uint   `gorm:"not null"`
	IPAddress string `gorm:"size:64;not null"`
	Revoked   bool   `gorm:"default:false;not null"`
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == 0 {
		s.ID = GenerateID()
	}
	return nil
}
