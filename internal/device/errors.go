package device

import "errors"

var (
	ErrCodeNotFound         = errors.New("device code not found")
	ErrCodeExpired          = errors.New("device code expired")
	ErrCodeConsumed         = errors.New("device code already consumed")
	ErrUserCodeNotFound     = errors.New("user code not found")
	ErrAuthorizationPending = errors.New("authorization pending")
	ErrSlowDown             = errors.New("polling too fast")
	ErrAccessDenied         = errors.New("authorization denied by user")
	ErrClientMismatch       = errors.New("device code issued to another client")
	ErrAlreadyDecided       = errors.New("device code already approved or denied")
)
