package cache

import (
	"context"
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
	t.Helper()

	mr := miniredis.RunT(t)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.DefaultTTL = time.Minute
	config.HealthCheckInterval = 0

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_ConnectFailure(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1"
	config.MaxRetries = 0

	_, err := NewManager(config, nil)
	require.Error(t, err)
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	err := manager.Set(ctx, "k1", Entry{Summary: "short summary", Backend: "ollama", Model: "llama3.1:8b"}, 0)
	require.NoError(t, err)

	assert.True(t, mr.Exists("chatdigest:summary:k1"))
	assert.Equal(t, time.Minute, mr.TTL("chatdigest:summary:k1"))

	entry, err := manager.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "short summary", entry.Summary)
	assert.Equal(t, "ollama", entry.Backend)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	entry, err := manager.Get(context.Background(), "missing")
	assert.Nil(t, entry)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Expiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", Entry{Summary: "s"}, 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_CorruptValue(t *testing.T) {
	mr, manager := setupTestRedis(t)
	require.NoError(t, mr.Set("chatdigest:summary:bad", "{not json"))

	_, err := manager.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", Entry{Summary: "x"}, 0))
	require.NoError(t, manager.Delete(ctx, "a"))
	require.NoError(t, manager.Delete(ctx))
	assert.False(t, mr.Exists("chatdigest:summary:a"))
}

func TestManager_Stats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", Entry{Summary: "x"}, 0))
	_, _ = manager.Get(ctx, "a")
	_, _ = manager.Get(ctx, "b")

	stats, err := manager.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestManager_ClosedOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "a", Entry{}, 0), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err = manager.GetStats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_HealthCheckStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.HealthCheckInterval = 10 * time.Millisecond

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		_ = manager.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the health check loop")
	}
}
