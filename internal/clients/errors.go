package clients

import "errors"

var (
	ErrClientNotFound          = errors.New("client not found")
	ErrClientCredentials       = errors.New("invalid client credentials")
	ErrClientAlreadyRegistered = errors.New("client already registered")
	ErrRedirectURIMismatch     = errors.New("redirect uri not registered")
	ErrGrantNotAllowed         = errors.New("grant type not allowed for client")
	ErrClientNameEmpty         = errors.New("client name cannot be empty")
)
