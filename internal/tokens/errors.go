package tokens

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrTokenExpired    = errors.New("refresh token expired")
	// ErrTokenReused marks a replay of an already-rotated refresh
	// token; the whole session is revoked when it is returned.
	ErrTokenReused = errors.New("refresh token reuse detected")
)
