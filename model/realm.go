package model

import (
	"time"

	"gorm.io/gorm"
)

// Realm is a tenant. Users, clients and policy never cross realm
// boundaries.
type Realm struct {
	ID      uint   `gorm:"primarykey"`
	Name    string `gorm:"uniqueIndex;size:64;not null"`
	Enabled bool   `gorm:"default:true;not null"`

	AccessTokenLifespan  time.Duration `gorm:"not null;default:0"`
	RefreshTokenLifespan time.Duration `gorm:"not null;default:0"`
	SSOSessionLifespan   time.Duration `gorm:"not null;default:0"`

	// brute-force policy
	BruteForceProtected   bool          `gorm:"default:true;not null"`
	MaxLoginFailures      int           `gorm:"default:5;not null"`
	FailureResetTime      time.Duration `gorm:"not null;default:0"`
	LockoutDuration       time.Duration `gorm:"not null;default:0"`
	PermanentLockoutAfter int           `gorm:"default:0;not null"` // 0 disables permanent lockout

	RequireTOTP bool `gorm:"default:false;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (r *Realm) BeforeCreate(tx *gorm.DB) error {
	if r.ID == 0 {
		r.ID = GenerateID()
	}
	return nil
}
