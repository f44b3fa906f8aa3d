package api

// DeviceApprovalRequest is the verification UI's decision submission.
type DeviceApprovalRequest struct {
	UserCode string `form:"user_code"`
	Username string `form:"username"`
	Password string `form:"password"`
	TOTP     string `form:"totp"`
}

// LogoutRequest ends the session anchoring the presented refresh token.
type LogoutRequest struct {
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	RefreshToken string `form:"refresh_token"`
}

// RevokeRequest follows RFC 7009 parameter naming.
type RevokeRequest struct {
	ClientID      string `form:"client_id"`
	ClientSecret  string `form:"client_secret"`
	Token         string `form:"token"`
	TokenTypeHint string `form:"token_type_hint"`
}

// ConsentDecisionRequest resolves a suspended authorization request.
type ConsentDecisionRequest struct {
	ConsentToken string `form:"consent_token"`
	Approved     bool   `form:"approved"`
}

type mfaRequiredResponse struct {
	Error    string `json:"error"`
	MFAToken string `json:"mfa_token"`
}

type consentRequiredResponse struct {
	Error        string `json:"error"`
	ConsentToken string `json:"consent_token"`
}
