package broker

import "errors"

var (
	ErrProviderNotFound  = errors.New("identity provider not found")
	ErrInvalidState      = errors.New("invalid or expired broker state")
	ErrExchangeFailed    = errors.New("code exchange with provider failed")
	ErrUserInfoFailed    = errors.New("userinfo fetch failed")
	ErrMissingSubject    = errors.New("provider userinfo carries no subject")
	ErrUserNotLinked     = errors.New("no local account linked to this identity")
	ErrEmailNotTrusted   = errors.New("provider email cannot be used for linking")
	ErrIdentityLinked    = errors.New("external identity already linked")
)
