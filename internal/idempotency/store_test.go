package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/seeder/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ok, err := s.MarkProcessed(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkProcessed(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	done, err := s.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, done)

	now = now.Add(2 * time.Minute)
	done, err = s.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, done)

	ok, err = s.MarkProcessed(ctx, "forever", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	now = now.Add(24 * 365 * time.Hour)
	done, _ = s.IsProcessed(ctx, "forever")
	assert.True(t, done)

	assert.NoError(t, s.Close())
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.IdempotencyConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(ctx, config.IdempotencyConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(ctx, config.IdempotencyConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

// TestRedisStore_Integration runs against a real Redis when SEEDER_TEST_REDIS_ADDR is set.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("SEEDER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SEEDER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	s, err := NewRedisStore(ctx, config.RedisConfig{Addr: addr, KeyPrefix: "seeder-test:"})
	require.NoError(t, err)
	defer s.Close()

	key := uuid.NewString()
	ok, err := s.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	done, err := s.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
}
