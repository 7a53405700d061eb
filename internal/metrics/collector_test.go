package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/assetflow/cache"
	"github.com/BaSui01/assetflow/loader"
	"github.com/BaSui01/assetflow/quality"
)

var (
	_ cache.Recorder   = (*Collector)(nil)
	_ loader.Recorder  = (*Collector)(nil)
	_ quality.Recorder = (*Collector)(nil)
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.loadsTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.lodChanges)
	assert.NotNil(t, collector.dbQueryDuration)
}

func TestCollector_NilIsNoOp(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
		c.RecordLoad("standard", "ok", time.Second, 10)
		c.SetNetworkTelemetry(1, 2)
		c.RecordCacheHit("memory")
		c.RecordCacheMiss("memory")
		c.RecordCacheEviction("memory", 1)
		c.SetCacheResidentBytes(1)
		c.RecordLevelChange(1)
		c.SetQualityState(true, 30, 80)
		c.RecordDBConnections("sqlite", 1, 1)
		c.RecordDBQuery("sqlite", "SELECT", time.Millisecond)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/metrics", 200, 100*time.Millisecond, 2048)
	collector.RecordHTTPRequest("GET", "/metrics", 503, 50*time.Millisecond, 10)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/metrics", "5xx")))
}

func TestCollector_RecordLoad(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLoad("streaming", "ok", 2*time.Second, 10<<20)
	collector.RecordLoad("streaming", "ok", time.Second, 1<<20)
	collector.RecordLoad("cache", "hit", time.Millisecond, 1<<20)
	collector.RecordLoad("standard", "error", time.Second, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.loadsTotal.WithLabelValues("streaming", "ok")))
	assert.Equal(t, float64(11<<20), testutil.ToFloat64(collector.loadBytes.WithLabelValues("streaming")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.loadBytes), "failed loads add no bytes")

	collector.SetNetworkTelemetry(512<<10, 85)
	assert.Equal(t, float64(512<<10), testutil.ToFloat64(collector.networkSpeed))
	assert.Equal(t, float64(85), testutil.ToFloat64(collector.networkLatency))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("memory")
	collector.RecordCacheMiss("durable")
	collector.RecordCacheEviction("memory", 3)
	collector.RecordCacheEviction("memory", 0)
	collector.SetCacheResidentBytes(1 << 20)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheHits.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("durable")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.cacheEvictions.WithLabelValues("memory")))
	assert.Equal(t, float64(1<<20), testutil.ToFloat64(collector.cacheResidentBytes))
}

func TestCollector_RecordQuality(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLevelChange(2)
	collector.RecordLevelChange(2)
	collector.SetQualityState(true, 18, 55)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.lodChanges.WithLabelValues("2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.qualityEnabled))
	assert.Equal(t, float64(18), testutil.ToFloat64(collector.frameRate))
	assert.Equal(t, float64(55), testutil.ToFloat64(collector.healthScore))

	collector.SetQualityState(false, 60, 100)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.qualityEnabled))
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("sqlite", "evict_expired", 20*time.Millisecond)
	collector.RecordDBConnections("sqlite", 10, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordLoad("progressive", "ok", 100*time.Millisecond, 1024)
			collector.RecordCacheHit("memory")
			collector.RecordLevelChange(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.loadsTotal.WithLabelValues("progressive", "ok")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.cacheHits.WithLabelValues("memory")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// promauto 已注册到默认 registry，这里再注册到独立 registry
	registry.MustRegister(collector.loadsTotal)
	registry.MustRegister(collector.healthScore)

	collector.RecordLoad("standard", "ok", time.Second, 1)
	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 2)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(0))
}
