package oauth

import (
	"strings"
)

// TokenRequest carries the form fields of a token endpoint call.
type TokenRequest struct {
	GrantType    string `form:"grant_type"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	Username     string `form:"username"`
	Password     string `form:"password"`
	RefreshToken string `form:"refresh_token"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
	DeviceCode   string `form:"device_code"`
	Scope        string `form:"scope"`
	TOTP         string `form:"totp"`
	MFAToken     string `form:"mfa_token"`
}

// ClientContext carries transport-level facts about the caller.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// TokenResponse is the token endpoint success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope"`
}

// SplitScope parses a space-delimited scope string.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

func scopeContains(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}
