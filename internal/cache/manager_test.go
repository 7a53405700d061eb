package cache

import (
	"context"
	"fmt"
	"sync"
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
	mr, err := miniredis.Run()
	require.NoError(t, err)

	manager, err := NewManager(Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)

	return mr, manager
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	payload := []byte{0x00, 0xff, 0x10, 'g', 'l', 'b'}

	require.NoError(t, manager.Set(ctx, "asset", payload, time.Minute))

	got, err := manager.Get(ctx, "asset")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManager_GetNonExistent(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	_, err := manager.Get(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "ttl", []byte("v"), 100*time.Millisecond))

	_, err := manager.Get(ctx, "ttl")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	_, err = manager.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_ScanPrefixAndDelete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, manager.Set(ctx, fmt.Sprintf("p:%d", i), []byte("x"), 0))
	}
	require.NoError(t, manager.Set(ctx, "other", []byte("x"), 0))

	var keys []string
	require.NoError(t, manager.ScanPrefix(ctx, "p:", func(key string) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Len(t, keys, 5)

	require.NoError(t, manager.Delete(ctx, keys...))
	stats, err := manager.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestManager_Closed(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_ConnectFailed(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, []byte(key), time.Minute))
			got, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, key, string(got))
		}(i)
	}
	wg.Wait()
}

func TestParseInfo(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n# Memory\r\nused_memory:2048\r\n# Clients\r\nconnected_clients:4\r\n"
	var stats Stats
	parseInfo(info, &stats)
	assert.Equal(t, uint64(12), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, int64(2048), stats.UsedMemory)
	assert.Equal(t, 4, stats.Connections)
}
