package consent

import "errors"

var (
	ErrConsentRequired = errors.New("consent required")
	ErrRequestNotFound = errors.New("consent request not found or already used")
)
