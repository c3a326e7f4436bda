package cache

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr := miniredis.RunT(t)

	config := Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}
	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestManager_SetAndGetUsesPrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	raw, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
}

func TestManager_Miss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)
}

func TestManager_DeleteAndExists(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "b", "2", 0))

	n, err := manager.Exists(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := manager.Delete(ctx, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = manager.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	require.NoError(t, manager.SetJSON(ctx, "json", record{Name: "x", Value: 1}, 0))

	var got record
	require.NoError(t, manager.GetJSON(ctx, "json", &got))
	assert.Equal(t, record{Name: "x", Value: 1}, got)

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), 0))
	require.NoError(t, manager.Set(ctx, "not-json", "{", 0))
	assert.Error(t, manager.GetJSON(ctx, "not-json", &got))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "v", 100*time.Millisecond))
	require.NoError(t, manager.Set(ctx, "default", "v", 0))
	require.NoError(t, manager.Set(ctx, "forever", "v", NoExpiration))

	assert.Equal(t, time.Minute, mr.TTL("test:default"))
	assert.Zero(t, mr.TTL("test:forever"))

	mr.FastForward(200 * time.Millisecond)
	_, err := manager.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	_, err = manager.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestManager_Scan(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, manager.Set(ctx, fmt.Sprintf("skill:%d", i), "v", 0))
	}
	require.NoError(t, mr.Set("other:skill:9", "v"))

	keys, err := manager.Scan(ctx, "skill:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"skill:0", "skill:1", "skill:2"}, keys)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Ping(context.Background()), ErrClosed)
}

func TestManager_ConnectFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, nil)
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n# Memory\r\nused_memory:1024\r\nmaxmemory:0\r\n# Clients\r\nconnected_clients:4\r\n"
	stats := parseInfo(info)
	assert.Equal(t, uint64(12), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, int64(1024), stats.UsedMemory)
	assert.Equal(t, 4, stats.Connections)
}
