package oauth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/realmgate/realmgate/model"
)

// AccessTokenClaims are the registered claims plus the scope-derived
// ones this server maps from granted scopes.
type AccessTokenClaims struct {
	Scope             string `json:"scope,omitempty"`
	Azp               string `json:"azp,omitempty"`
	SID               string `json:"sid,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// IDTokenClaims is the OIDC identity assertion minted when the openid
// scope is granted.
type IDTokenClaims struct {
	Nonce             string `json:"nonce,omitempty"`
	SID               string `json:"sid,omitempty"`
	Azp               string `json:"azp,omitempty"`
	AuthTime          int64  `json:"auth_time,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

func (e *Engine) issuer(realm *model.Realm) string {
	return e.baseURL + "/realms/" + realm.Name
}

// applyScopeClaims fills the claims derived from granted scopes:
// profile contributes name claims, email contributes email claims.
func applyScopeClaims(scopes []string, user *model.User, username, name, email *string, emailVerified **bool) {
	if user == nil {
		return
	}
	if scopeContains(scopes, "profile") {
		*username = user.Username
		*name = user.FullName
	}
	if scopeContains(scopes, "email") {
		*email = user.Email
		verified := user.EmailVerified
		*emailVerified = &verified
	}
}

func (e *Engine) buildAccessClaims(realm *model.Realm, client *model.Client, user *model.User, sid, scope string, lifespan time.Duration) *AccessTokenClaims {
	now := time.Now()
	subject := client.ClientID
	if user != nil {
		subject = strconv.FormatUint(uint64(user.ID), 10)
	}
	claims := &AccessTokenClaims{
		Scope: scope,
		Azp:   client.ClientID,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer(realm),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{client.ClientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(lifespan)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	applyScopeClaims(SplitScope(scope), user,
		&claims.PreferredUsername, &claims.Name, &claims.Email, &claims.EmailVerified)
	return claims
}

func (e *Engine) buildIDClaims(realm *model.Realm, client *model.Client, user *model.User, sid, scope, nonce string, lifespan time.Duration) *IDTokenClaims {
	now := time.Now()
	claims := &IDTokenClaims{
		Nonce:    nonce,
		SID:      sid,
		Azp:      client.ClientID,
		AuthTime: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer(realm),
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Audience:  jwt.ClaimStrings{client.ClientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(lifespan)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	applyScopeClaims(SplitScope(scope), user,
		&claims.PreferredUsername, &claims.Name, &claims.Email, &claims.EmailVerified)
	return claims
}
