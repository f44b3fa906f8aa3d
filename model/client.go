package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// Client is an application identity scoped to a realm. Confidential
// clients hold a hashed secret; public clients have none and must use
// PKCE on the authorization_code grant.
type Client struct {
	ID           uint   `gorm:"primarykey"`
	RealmID      uint   `gorm:"not null;index:idx_realm_client,unique"`
	ClientID     string `gorm:"size:64;not null;index:idx_realm_client,unique"`
	Name         string `gorm:"size:128;not null"`
	SecretHash   string `gorm:"size:128;not null"`
	Public       bool   `gorm:"default:false;not null"`
	GrantTypes   string `gorm:"size:512;not null"`  // space separated
	RedirectURIs string `gorm:"size:2048;not null"` // space separated, exact or base/* wildcard
	DefaultScope string `gorm:"size:512;not null"`

	UseRefreshTokens  bool   `gorm:"default:true;not null"`
	ConsentRequired   bool   `gorm:"default:false;not null"`
	BackchannelLogout string `gorm:"size:1024;not null;default:''"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}

func (c *Client) AllowsGrant(grantType string) bool {
	for _, g := range strings.Fields(c.GrantTypes) {
		if g == grantType {
			return true
		}
	}
	return false
}
