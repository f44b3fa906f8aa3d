package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testEntry struct {
	Name      string    `redis:"name"`
	Count     int       `redis:"count"`
	Enabled   bool      `redis:"enabled"`
	CreatedAt time.Time `redis:"created_at"`
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	want := testEntry{Name: "alice", Count: 3, Enabled: true, CreatedAt: time.Now().Truncate(time.Second)}
	require.NoError(t, storage.Set(ctx, "k1", want, time.Minute))

	var got testEntry
	require.NoError(t, storage.Get(ctx, "k1", &got))
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Count, got.Count)
	require.True(t, got.Enabled)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestMemoryStorageExpiry(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	require.NoError(t, storage.Set(ctx, "k1", testEntry{Name: "x"}, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var got testEntry
	require.ErrorIs(t, storage.Get(ctx, "k1", &got), ErrNotFound)
	require.ErrorIs(t, storage.Delete(ctx, "k1"), ErrNotFound)
}

func TestMemoryStorageDeleteDecidesRace(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	require.NoError(t, storage.Set(ctx, "k1", testEntry{Name: "x"}, time.Minute))
	require.NoError(t, storage.Delete(ctx, "k1"))
	require.ErrorIs(t, storage.Delete(ctx, "k1"), ErrNotFound)
}

func TestMemoryStorageIncrAttr(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	n, err := storage.IncrAttr(ctx, "k1", "consumed", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = storage.IncrAttr(ctx, "k1", "consumed", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestMemoryStorageSetAttr(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	require.NoError(t, storage.Set(ctx, "k1", testEntry{Name: "x", Count: 1}, time.Minute))
	require.NoError(t, storage.SetAttr(ctx, "k1", "count", 7))

	var got testEntry
	require.NoError(t, storage.Get(ctx, "k1", &got))
	require.Equal(t, 7, got.Count)
	require.Equal(t, "x", got.Name)
}
