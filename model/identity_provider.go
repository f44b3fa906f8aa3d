package model

import (
	"time"

	"gorm.io/gorm"
)

// IdentityProvider configures an external OIDC/OAuth2 provider
// federated with a realm.
type IdentityProvider struct {
	ID           uint   `gorm:"primarykey"`
	RealmID      uint   `gorm:"not null;index:idx_realm_alias,unique"`
	Alias        string `gorm:"size:64;not null;index:idx_realm_alias,unique"`
	Enabled      bool   `gorm:"default:true;not null"`
	ClientID     string `gorm:"size:256;not null"`
	ClientSecret string `gorm:"size:256;not null"`
	AuthURL      string `gorm:"size:1024;not null"`
	TokenURL     string `gorm:"size:1024;not null"`
	UserInfoURL  string `gorm:"size:1024;not null"`
	Scopes       string `gorm:"size:512;not null"` // space separated

	TrustEmail  bool `gorm:"default:false;not null"`
	LinkOnly    bool `gorm:"default:false;not null"`
	SyncProfile bool `gorm:"default:false;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (p *IdentityProvider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}

// FederatedIdentity links an external subject at a provider to a local
// user. The unique index makes federation idempotent: the same external
// identity can never map to two local accounts.
type FederatedIdentity struct {
	ID              uint   `gorm:"primarykey"`
	RealmID         uint   `gorm:"not null;index:idx_fed_identity,unique"`
	ProviderAlias   string `gorm:"size:64;not null;index:idx_fed_identity,unique"`
	ExternalSubject string `gorm:"size:256;not null;index:idx_fed_identity,unique"`
	UserID          uint   `gorm:"not null;index"`
	ExternalEmail   string `gorm:"size:256;not null;default:''"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *FederatedIdentity) BeforeCreate(tx *gorm.DB) error {
	if f.ID == 0 {
		f.ID = GenerateID()
	}
	return nil
}
