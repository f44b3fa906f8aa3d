package keys

import "errors"

var (
	ErrNoActiveKey    = errors.New("realm has no active signing key")
	ErrKeyNotFound    = errors.New("signing key not found")
	ErrInvalidKeyPEM  = errors.New("invalid signing key pem")
	ErrTokenInvalid   = errors.New("token signature invalid")
	ErrUnexpectedAlgo = errors.New("unexpected signing algorithm")
)
