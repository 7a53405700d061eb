package assetflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/assetflow/config"
	"github.com/BaSui01/assetflow/device"
	"github.com/BaSui01/assetflow/internal/metrics"
	"github.com/BaSui01/assetflow/loader"
	"github.com/BaSui01/assetflow/testutil"
	"github.com/BaSui01/assetflow/testutil/fixtures"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Device.Tier = "desktop"
	cfg.Cache.DiskBackend = "none"
	cfg.Metrics.Enabled = false
	cfg.Loader.PreloadInterval = 10 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(context.Background(), cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "config is required")

	cfg := testConfig(t)
	cfg.Loader.ChunkSize = 0
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "loader.chunk_size")

	cfg = testConfig(t)
	cfg.Cache.DiskBackend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err = New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "connect redis cache")
}

func TestEngine_LoadThroughCache(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.TextPayload("assetflow", 300<<10))
	eng := newEngine(t, testConfig(t))
	ctx := context.Background()

	assert.Equal(t, device.TierDesktop, eng.Profile().Tier)
	assert.True(t, eng.Settings().ShadowsEnabled)
	assert.False(t, eng.Quality().Enabled(), "desktop starts with adaptive quality off")

	url := srv.URL + "/models/robot.glb"
	first, err := eng.Loader().Load(ctx, url, loader.Options{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, srv.Payload(), first.Data)

	gets := srv.Gets()
	second, err := eng.Loader().Load(ctx, url, loader.Options{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, srv.Payload(), second.Data)
	assert.Equal(t, gets, srv.Gets(), "cache hit issues no request")

	net := eng.Monitor().Network()
	assert.Equal(t, 2, net.Requests)
	assert.Equal(t, 1, net.CacheHits)

	assert.NoError(t, eng.Health(ctx))
	assert.Nil(t, eng.Database())
}

func TestEngine_ClassifiesEnvironment(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Tier = ""

	eng := newEngine(t, cfg, WithEnvironment(device.Environment{
		UserAgent:  fixtures.UserAgentIPhone,
		PixelRatio: 3,
	}))

	assert.Equal(t, device.TierMobile, eng.Profile().Tier)
	assert.False(t, eng.Settings().ShadowsEnabled)
	assert.True(t, eng.Policy().StartEnabled)
	assert.True(t, eng.Quality().Enabled())
	assert.Len(t, eng.Quality().Levels(), len(eng.Policy().Levels))
}

func TestEngine_TieredPersistence(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.TextPayload("assetflow", 128<<10))
	dir := t.TempDir()
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Cache.DiskBackend = "leveldb"
	cfg.Cache.DiskPath = filepath.Join(dir, "disk")
	cfg.Cache.Durable = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(dir, "db", "assetflow.db")
	cfg.Database.AutoMigrate = true

	collector := metrics.NewCollector("assetflow_engine_test", nil)
	url := srv.URL + "/textures/wall.ktx2"

	eng, err := New(ctx, cfg, zaptest.NewLogger(t), WithMetrics(collector))
	require.NoError(t, err)
	require.NotNil(t, eng.Database())
	require.NoError(t, eng.Health(ctx))

	_, err = eng.Loader().Load(ctx, url, loader.Options{})
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	families := gatheredFamilies(t, "assetflow_engine_test_")
	assert.True(t, families["assetflow_engine_test_asset_loads_total"])
	assert.True(t, families["assetflow_engine_test_db_query_duration_seconds"])
	assert.True(t, families["assetflow_engine_test_db_connections_open"])

	// 重新打开后由磁盘层命中，不访问源站
	gets := srv.Gets()
	reopened := newEngine(t, cfg)
	res, err := reopened.Loader().Load(ctx, url, loader.Options{})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, srv.Payload(), res.Data)
	assert.Equal(t, gets, srv.Gets())
}

func TestEngine_RedisDiskTier(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := fixtures.NewOriginServer(t, fixtures.TextPayload("assetflow", 64<<10))

	cfg := testConfig(t)
	cfg.Cache.DiskBackend = "redis"
	cfg.Redis.Addr = mr.Addr()

	eng := newEngine(t, cfg)
	_, err := eng.Loader().Load(context.Background(), srv.URL+"/scene.gltf", loader.Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, mr.Keys(), "write-back reaches the redis tier")
}

func TestEngine_HealthReportsRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Cache.DiskBackend = "redis"
	cfg.Redis.Addr = mr.Addr()

	eng := newEngine(t, cfg)
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	require.NoError(t, eng.Health(ctx))

	mr.Close()
	err := eng.Health(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "redis disk cache")
}

func TestEngine_StartRunsPreload(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.TextPayload("assetflow", 32<<10))
	eng := newEngine(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	eng.Start(ctx)

	url := srv.URL + "/preload/tree.glb"
	require.NoError(t, eng.Loader().Preload(url, 5))

	assert.Eventually(t, func() bool {
		data, err := eng.Cache().Get(context.Background(), url)
		return err == nil && len(data) == len(srv.Payload())
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err := eng.Loader().Load(context.Background(), url, loader.Options{})
	assert.ErrorIs(t, err, loader.ErrClosed)
}

func TestEngine_ProgressiveEvents(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.Payload(3<<20))
	eng := newEngine(t, testConfig(t))
	ctx := testutil.TestContext(t)

	task := eng.Loader().Start(ctx, srv.URL+"/city.glb", loader.Options{})
	events := testutil.CollectEvents(t, task.Events(), 10*time.Second)
	require.NotEmpty(t, events)

	types := testutil.EventTypes(events)
	assert.Equal(t, loader.EventFirstChunk, types[0], "first slice is delivered before completion")
	assert.Equal(t, loader.EventComplete, types[len(types)-1])

	res, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, loader.StrategyProgressive, res.Strategy)
	assert.Equal(t, srv.Payload(), res.Data)
	assert.Positive(t, srv.RangeGets())
}

func gatheredFamilies(t *testing.T, prefix string) map[string]bool {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	out := make(map[string]bool)
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), prefix) {
			out[mf.GetName()] = true
		}
	}
	return out
}
