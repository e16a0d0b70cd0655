package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationKey(t *testing.T) {
	day := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "doseline:notified:42:7:2026-10-18:0800", NotificationKey(42, 7, day, "08:00"))
}

func TestMemoryGuard_AdmitsOnce(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "a", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Acquire(ctx, "b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_Expires(t *testing.T) {
	g := NewMemoryGuard()
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := g.Acquire(ctx, "a", NotificationTTL)
	require.True(t, ok)

	now = now.Add(NotificationTTL - time.Second)
	ok, _ = g.Acquire(ctx, "a", NotificationTTL)
	assert.False(t, ok)

	now = now.Add(time.Second)
	ok, _ = g.Acquire(ctx, "a", NotificationTTL)
	assert.True(t, ok)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	assert.Nil(t, NewRedisClient("", "", 0))
	assert.Nil(t, NewRedisClient("127.0.0.1:1", "", 0))
}

func TestMemoryGuard_Release(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, _ := g.Acquire(ctx, "a", time.Hour)
	require.True(t, ok)
	require.NoError(t, g.Release(ctx, "a"))

	ok, err := g.Acquire(ctx, "a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, g.Release(ctx, "never-acquired"))
}
