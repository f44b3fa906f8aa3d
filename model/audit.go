package model

import (
	"time"

	"gorm.io/gorm"
)

// AuditEvent records a security-relevant event. Events are
// fire-and-forget and never consulted for protocol decisions.
type AuditEvent struct {
	ID        uint   `gorm:"primarykey,autoIncrement"`
	RealmID   uint   `gorm:"not null;index"`
	UserID    uint   `gorm:"index"`
	Username  string `gorm:"size:64"`
	ClientID  string `gorm:"size:64"`
	EventType string `gorm:"size:32;not null;index"`
	GrantType string `gorm:"size:64"`
	IP        string `gorm:"size:64"`
	UserAgent string `gorm:"size:256"`
	Reason    string `gorm:"size:256"`
	CreatedAt time.Time `gorm:"index"`
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == 0 {
		e.ID = GenerateID()
	}
	return nil
}
