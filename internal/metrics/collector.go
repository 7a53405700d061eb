// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。实现 cache.Recorder、loader.Recorder 与
// quality.Recorder，nil Collector 上的调用全部为空操作。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 加载指标
	loadsTotal     *prometheus.CounterVec
	loadDuration   *prometheus.HistogramVec
	loadBytes      *prometheus.CounterVec
	networkSpeed   prometheus.Gauge
	networkLatency prometheus.Gauge

	// 缓存指标
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	cacheResidentBytes prometheus.Gauge

	// 质量指标
	lodChanges     *prometheus.CounterVec
	qualityEnabled prometheus.Gauge
	frameRate      prometheus.Gauge
	healthScore    prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 加载指标
	c.loadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_loads_total",
			Help:      "Total number of asset loads",
		},
		[]string{"strategy", "status"}, // strategy: standard, progressive, streaming, cache
	)

	c.loadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asset_load_duration_seconds",
			Help:      "Asset load duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	c.loadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_load_bytes_total",
			Help:      "Total bytes delivered by asset loads",
		},
		[]string{"strategy"},
	)

	c.networkSpeed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_speed_bytes_per_second",
			Help:      "Smoothed network throughput estimate",
		},
	)

	c.networkLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_latency_milliseconds",
			Help:      "Smoothed time to response headers",
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"tier"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"tier"},
	)

	c.cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of evicted cache entries",
		},
		[]string{"tier"},
	)

	c.cacheResidentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_memory_resident_bytes",
			Help:      "Bytes resident in the memory cache tier",
		},
	)

	// 质量指标
	c.lodChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lod_level_changes_total",
			Help:      "Total number of LOD level changes",
		},
		[]string{"level"},
	)

	c.qualityEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adaptive_quality_enabled",
			Help:      "1 when adaptive quality reduction is engaged",
		},
	)

	c.frameRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_rate",
			Help:      "Frame rate of the last sampling window",
		},
	)

	c.healthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Render health score between 0 and 100",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📦 加载指标记录
// =============================================================================

// RecordLoad 记录一次资源加载
func (c *Collector) RecordLoad(strategy, status string, duration time.Duration, bytes int64) {
	if c == nil {
		return
	}
	c.loadsTotal.WithLabelValues(strategy, status).Inc()
	c.loadDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if bytes > 0 {
		c.loadBytes.WithLabelValues(strategy).Add(float64(bytes))
	}
}

// SetNetworkTelemetry 更新网速与延迟估计
func (c *Collector) SetNetworkTelemetry(speedBytesPerSec, latencyMs float64) {
	if c == nil {
		return
	}
	c.networkSpeed.Set(speedBytesPerSec)
	c.networkLatency.Set(latencyMs)
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(tier string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(tier string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(tier).Inc()
}

// RecordCacheEviction 记录淘汰条目数
func (c *Collector) RecordCacheEviction(tier string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheEvictions.WithLabelValues(tier).Add(float64(n))
}

// SetCacheResidentBytes 更新内存层常驻字节数
func (c *Collector) SetCacheResidentBytes(bytes int64) {
	if c == nil {
		return
	}
	c.cacheResidentBytes.Set(float64(bytes))
}

// =============================================================================
// 🎚️ 质量指标记录
// =============================================================================

// RecordLevelChange 记录 LOD 等级变化
func (c *Collector) RecordLevelChange(level int) {
	if c == nil {
		return
	}
	c.lodChanges.WithLabelValues(strconv.Itoa(level)).Inc()
}

// SetQualityState 更新自适应质量状态
func (c *Collector) SetQualityState(enabled bool, frameRate float64, healthScore int) {
	if c == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	c.qualityEnabled.Set(v)
	c.frameRate.Set(frameRate)
	c.healthScore.Set(float64(healthScore))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
