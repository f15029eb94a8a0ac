package lines

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/shared/cache"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "propline:L-42:status", key("L-42"))
}

// Precisa de um Redis real: REDIS_TEST_ADDR=localhost:6379
func TestCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := cache.ConnectRedis(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewCache(rdb, time.Minute)
	id := "test-" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, key(id)) })

	_, ok, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, id, entry.LineFrozen))
	st, ok, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry.LineFrozen, st)

	require.NoError(t, c.MarkSettled(ctx, id))
	st, _, err = c.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entry.LineSettled, st)
}
