package oauth

import "github.com/gofiber/fiber/v2"

// ProtocolError is an OAuth2 wire error. The Code field is what goes
// on the wire; Status is the HTTP status the boundary layer uses.
type ProtocolError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Description
}

// Descriptions never reveal which credential component was wrong.
var (
	ErrInvalidRequest = &ProtocolError{
		Code:        "invalid_request",
		Description: "Missing or malformed request parameter.",
		Status:      fiber.StatusBadRequest,
	}
	ErrInvalidClient = &ProtocolError{
		Code:        "invalid_client",
		Description: "Invalid client or client credentials.",
		Status:      fiber.StatusUnauthorized,
	}
	ErrInvalidGrant = &ProtocolError{
		Code:        "invalid_grant",
		Description: "Invalid user credentials or grant.",
		Status:      fiber.StatusBadRequest,
	}
	ErrUnsupportedGrantType = &ProtocolError{
		Code:        "unsupported_grant_type",
		Description: "Unsupported grant type.",
		Status:      fiber.StatusBadRequest,
	}
	ErrInvalidScope = &ProtocolError{
		Code:        "invalid_scope",
		Description: "Requested scope is not allowed for this client.",
		Status:      fiber.StatusBadRequest,
	}
	ErrUnauthorizedClient = &ProtocolError{
		Code:        "unauthorized_client",
		Description: "Client is not allowed to use this grant type.",
		Status:      fiber.StatusBadRequest,
	}
	ErrAuthorizationPending = &ProtocolError{
		Code:        "authorization_pending",
		Description: "The authorization request is still pending.",
		Status:      fiber.StatusBadRequest,
	}
	ErrSlowDown = &ProtocolError{
		Code:        "slow_down",
		Description: "Polling faster than the advertised interval.",
		Status:      fiber.StatusBadRequest,
	}
	ErrExpiredToken = &ProtocolError{
		Code:        "expired_token",
		Description: "The device code has expired.",
		Status:      fiber.StatusBadRequest,
	}
	ErrAccessDenied = &ProtocolError{
		Code:        "access_denied",
		Description: "The authorization request was denied.",
		Status:      fiber.StatusBadRequest,
	}
)

// MFARequiredError pauses a password grant until the client resubmits
// with the issued mfa_token and a TOTP code.
type MFARequiredError struct {
	MFAToken string
}

func (e *MFARequiredError) Error() string {
	return "mfa_required"
}

// ConsentRequiredError pauses an authorization flow until the user
// decides on the requested scopes. ConsentToken retrieves the
// suspended request exactly once.
type ConsentRequiredError struct {
	ConsentToken string
}

func (e *ConsentRequiredError) Error() string {
	return "consent_required"
}
