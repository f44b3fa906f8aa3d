package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOneTimeTakeConsumes(t *testing.T) {
	ctx := context.Background()
	ot := NewOneTime[testEntry](NewMemoryStorage(), "t:", "master-key")

	secret, err := ot.Issue(ctx, testEntry{Name: "artifact"}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	got, err := ot.Take(ctx, secret)
	require.NoError(t, err)
	require.Equal(t, "artifact", got.Name)

	_, err = ot.Take(ctx, secret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOneTimeExpires(t *testing.T) {
	ctx := context.Background()
	ot := NewOneTime[testEntry](NewMemoryStorage(), "t:", "master-key")

	secret, err := ot.Issue(ctx, testEntry{Name: "artifact"}, 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = ot.Take(ctx, secret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOneTimeWrongSecret(t *testing.T) {
	ctx := context.Background()
	ot := NewOneTime[testEntry](NewMemoryStorage(), "t:", "master-key")

	_, err := ot.Issue(ctx, testEntry{Name: "artifact"}, time.Minute)
	require.NoError(t, err)

	_, err = ot.Take(ctx, "guessed-secret")
	require.ErrorIs(t, err, ErrNotFound)
}
