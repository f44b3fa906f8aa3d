package model

import (
	"time"

	"gorm.io/gorm"
)

// RefreshToken is the persisted half of an opaque refresh token; only
// the HMAC hash of the value handed to the client is stored. Tokens in
// a session form a singly-linked rotation chain via SupersededBy, with
// at most one non-revoked token per chain.
type RefreshToken struct {
	ID           uint   `gorm:"primarykey"`
	RealmID      uint   `gorm:"not null"`
	SessionID    uint   `gorm:"not null;index"`
	TokenHash    string `gorm:"size:64;not null;uniqueIndex"`
	Scope        string `gorm:"size:512;not null"`
	Revoked      bool   `gorm:"default:false;not null"`
	SupersededBy uint   `gorm:"default:0;not null"`
	ExpiresAt    time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}
