package model

import (
	"time"

	"gorm.io/gorm"
)

// SigningKey holds a realm's RSA keypair, private key PEM at rest.
// Exactly one key per realm is active at any time; rotation
// deactivates the predecessor in the same transaction.
type SigningKey struct {
	ID         uint   `gorm:"primarykey"`
	RealmID    uint   `gorm:"not null;index"`
	KID        string `gorm:"size:64;not null;uniqueIndex"`
	PrivatePEM string `gorm:"type:text;not null"`
	Active     bool   `gorm:"default:false;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (k *SigningKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == 0 {
		k.ID = GenerateID()
	}
	return nil
}
