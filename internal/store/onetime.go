package store

import (
	"context"
	"time"

	"github.com/realmgate/realmgate/internal/common"
)

// OneTime stores TTL-bound single-use artifacts. Callers receive an
// opaque random secret; only the HMAC hash of the secret is used as
// the storage key, so a dump of the backing store is not enough to
// replay an artifact. Take is delete-on-read: when concurrent callers
// present the same secret, exactly one gets the value.
type OneTime[T any] struct {
	store   Store[T]
	hashKey string
}

func NewOneTime[T any](storage Storage, keyPrefix string, hashKey string) *OneTime[T] {
	return &OneTime[T]{
		store:   New[T](storage, keyPrefix),
		hashKey: hashKey,
	}
}

// Issue persists val under a fresh secret and returns the secret.
func (s *OneTime[T]) Issue(ctx context.Context, val T, expiresIn time.Duration) (string, error) {
	secret, err := common.GenerateSecret(43)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, s.hash(secret), val, expiresIn); err != nil {
		return "", err
	}
	return secret, nil
}

// Take consumes the artifact behind secret. A second Take with the
// same secret, or a Take racing another, returns ErrNotFound.
func (s *OneTime[T]) Take(ctx context.Context, secret string) (*T, error) {
	return s.store.Remove(ctx, s.hash(secret))
}

func (s *OneTime[T]) hash(secret string) string {
	return common.CalculateHash(s.hashKey, secret)
}
