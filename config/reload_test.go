package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewReloader_RequiresPath(t *testing.T) {
	_, err := NewReloader("", nil)
	assert.Error(t, err)
}

func TestNewReloader_MissingFileIsAllowed(t *testing.T) {
	r, err := NewReloader(filepath.Join(t.TempDir(), "later.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, r.Current().Server.HTTPPort)
}

func TestReloader_ReloadNotifiesCallbacks(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	r, err := NewReloader(path, initial, WithReloaderLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	var got []string
	r.OnReload(func(old, new *Config) {
		got = append(got, old.Log.Level+"->"+new.Log.Level)
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	require.NoError(t, r.Reload())

	assert.Equal(t, []string{"info->debug"}, got)
	assert.Equal(t, "debug", r.Current().Log.Level)
	assert.Equal(t, 1, r.Reloads())
}

func TestReloader_InvalidConfigKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8081\n")
	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	r, err := NewReloader(path, initial)
	require.NoError(t, err)
	called := false
	r.OnReload(func(_, _ *Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 0\n"), 0o644))
	assert.Error(t, r.Reload())

	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))
	assert.Error(t, r.Reload())

	assert.False(t, called)
	assert.Equal(t, 8081, r.Current().Server.HTTPPort)
	assert.Zero(t, r.Reloads())
}

func TestReloader_PollsForChanges(t *testing.T) {
	path := writeConfig(t, "quality:\n  low_fps: 30\n")
	r, err := NewReloader(path, nil,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(5*time.Millisecond),
	)
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		low []float64
	)
	r.OnReload(func(_, new *Config) {
		mu.Lock()
		defer mu.Unlock()
		low = append(low, new.Quality.LowFPS)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx), "second start is rejected")
	defer r.Stop()

	// 保证修改时间前进
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("quality:\n  low_fps: 20\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(low) == 1 && low[0] == 20
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReloader_StopIsIdempotent(t *testing.T) {
	r, err := NewReloader(writeConfig(t, ""), nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()
}
