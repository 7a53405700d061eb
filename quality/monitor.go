package quality

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/BaSui01/assetflow/device"
	"github.com/BaSui01/assetflow/loader"
)

// =============================================================================
// 📊 性能监控
// =============================================================================

// RenderStats 渲染后端统计。MemoryUsageMB 无法获取时为 None。
type RenderStats struct {
	DrawCalls     int                   `json:"draw_calls"`
	TriangleCount int                   `json:"triangle_count"`
	Textures      int                   `json:"textures"`
	Geometries    int                   `json:"geometries"`
	MemoryUsageMB device.Option[float64] `json:"-"`
}

// RenderStatsSource 渲染器提供的统计来源
type RenderStatsSource interface {
	RenderStats() RenderStats
}

// FrameSample 一个采样窗口的结果
type FrameSample struct {
	FrameRate    float64   `json:"frame_rate"`
	RenderTimeMs float64   `json:"render_time_ms"`
	Frames       int       `json:"frames"`
	At           time.Time `json:"at"`
}

// RenderTelemetry 最近一次帧采样与渲染统计的合并视图
type RenderTelemetry struct {
	FrameRate     float64
	RenderTimeMs  float64
	MemoryUsageMB device.Option[float64]
	DrawCalls     int
	TriangleCount int
	Textures      int
	Geometries    int
}

// NetworkStats 最近窗口内的网络统计
type NetworkStats struct {
	Requests     int     `json:"requests"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Failures     int     `json:"failures"`
	CacheHits    int     `json:"cache_hits"`
	HitRatio     float64 `json:"cache_hit_ratio"`
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	// 每多少帧计算一次帧率
	SampleWindow int `yaml:"sample_window" json:"sample_window"`
	// 每多少帧读取一次渲染统计
	RenderSampleEvery int `yaml:"render_sample_every" json:"render_sample_every"`
	// 网络统计窗口
	NetworkWindow     time.Duration `yaml:"network_window" json:"network_window"`
	NetworkWindowSize int           `yaml:"network_window_size" json:"network_window_size"`
	// 健康分的参考上限
	TargetFPS      float64 `yaml:"target_fps" json:"target_fps"`
	MemoryBudgetMB float64 `yaml:"memory_budget_mb" json:"memory_budget_mb"`
	DrawCallBudget int     `yaml:"draw_call_budget" json:"draw_call_budget"`
}

// DefaultMonitorConfig 默认监控配置
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleWindow:      60,
		RenderSampleEvery: 60,
		NetworkWindow:     5 * time.Minute,
		NetworkWindowSize: 256,
		TargetFPS:         60,
		MemoryBudgetMB:    512,
		DrawCallBudget:    500,
	}
}

// PerformanceMonitor 汇总帧、渲染与网络遥测。只读，不修改渲染状态。
type PerformanceMonitor struct {
	cfg    MonitorConfig
	env    device.Environment
	source RenderStatsSource
	logger *zap.Logger

	mu          sync.RWMutex
	frames      int
	totalFrames int64
	frameTime   time.Duration
	renderTime  time.Duration
	last        FrameSample
	render      RenderStats

	netSeq  uint64
	network *expirable.LRU[string, loader.TransferRecord]
}

// NewPerformanceMonitor 创建监控器。source 可以为 nil。
func NewPerformanceMonitor(cfg MonitorConfig, env device.Environment, source RenderStatsSource, logger *zap.Logger) *PerformanceMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultMonitorConfig()
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = def.SampleWindow
	}
	if cfg.RenderSampleEvery <= 0 {
		cfg.RenderSampleEvery = cfg.SampleWindow
	}
	if cfg.NetworkWindow <= 0 {
		cfg.NetworkWindow = def.NetworkWindow
	}
	if cfg.NetworkWindowSize <= 0 {
		cfg.NetworkWindowSize = def.NetworkWindowSize
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = def.TargetFPS
	}
	if cfg.DrawCallBudget <= 0 {
		cfg.DrawCallBudget = def.DrawCallBudget
	}

	return &PerformanceMonitor{
		cfg:     cfg,
		env:     env,
		source:  source,
		logger:  logger.With(zap.String("component", "performance_monitor")),
		network: expirable.NewLRU[string, loader.TransferRecord](cfg.NetworkWindowSize, nil, cfg.NetworkWindow),
	}
}

// SetRenderStatsSource 替换渲染统计来源
func (m *PerformanceMonitor) SetRenderStatsSource(src RenderStatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
}

// RecordFrame 记录一帧。窗口满时返回该窗口的采样结果。
func (m *PerformanceMonitor) RecordFrame(frameTime, renderTime time.Duration) (FrameSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames++
	m.totalFrames++
	m.frameTime += frameTime
	m.renderTime += renderTime

	if m.source != nil && m.totalFrames%int64(m.cfg.RenderSampleEvery) == 0 {
		m.render = m.source.RenderStats()
	}

	if m.frames < m.cfg.SampleWindow {
		return FrameSample{}, false
	}

	sample := FrameSample{Frames: m.frames, At: time.Now()}
	if m.frameTime > 0 {
		sample.FrameRate = float64(m.frames) / m.frameTime.Seconds()
	}
	sample.RenderTimeMs = float64(m.renderTime) / float64(time.Millisecond) / float64(m.frames)

	m.last = sample
	m.frames = 0
	m.frameTime = 0
	m.renderTime = 0
	return sample, true
}

// LastSample 最近一次完整窗口的采样，尚无时 Frames 为 0
func (m *PerformanceMonitor) LastSample() FrameSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Telemetry 当前渲染遥测
func (m *PerformanceMonitor) Telemetry() RenderTelemetry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return RenderTelemetry{
		FrameRate:     m.last.FrameRate,
		RenderTimeMs:  m.last.RenderTimeMs,
		MemoryUsageMB: m.render.MemoryUsageMB,
		DrawCalls:     m.render.DrawCalls,
		TriangleCount: m.render.TriangleCount,
		Textures:      m.render.Textures,
		Geometries:    m.render.Geometries,
	}
}

// ObserveTransfer 实现 loader.TransferObserver
func (m *PerformanceMonitor) ObserveTransfer(rec loader.TransferRecord) {
	m.mu.Lock()
	m.netSeq++
	key := strconv.FormatUint(m.netSeq, 10)
	m.mu.Unlock()
	m.network.Add(key, rec)
}

// Network 最近窗口内的网络统计
func (m *PerformanceMonitor) Network() NetworkStats {
	var (
		stats   NetworkStats
		latency time.Duration
		timed   int
	)
	for _, rec := range m.network.Values() {
		stats.Requests++
		switch {
		case rec.Err != nil:
			stats.Failures++
		case rec.FromCache:
			stats.CacheHits++
		default:
			latency += rec.Latency
			timed++
		}
	}
	if timed > 0 {
		stats.AvgLatencyMs = float64(latency) / float64(time.Millisecond) / float64(timed)
	}
	if stats.Requests > 0 {
		stats.HitRatio = float64(stats.CacheHits) / float64(stats.Requests)
	}
	return stats
}

// =============================================================================
// 🩺 健康分与建议
// =============================================================================

type finding struct {
	penalty    int
	suggestion string
}

func (m *PerformanceMonitor) findings() []finding {
	t := m.Telemetry()
	net := m.Network()
	sampled := m.LastSample().Frames > 0

	var out []finding

	if sampled {
		ratio := t.FrameRate / m.cfg.TargetFPS
		switch {
		case ratio < 0.5:
			out = append(out, finding{30, fmt.Sprintf("frame rate %.0f fps is critically low: enable adaptive quality and reduce scene complexity", t.FrameRate)})
		case ratio < 0.75:
			out = append(out, finding{15, fmt.Sprintf("frame rate %.0f fps is below target: lower LOD thresholds or pixel ratio", t.FrameRate)})
		case ratio < 0.9:
			out = append(out, finding{5, "frame rate slightly below target"})
		}
	}

	if used, ok := t.MemoryUsageMB.Get(); ok && m.cfg.MemoryBudgetMB > 0 {
		ratio := used / m.cfg.MemoryBudgetMB
		switch {
		case ratio > 0.9:
			out = append(out, finding{25, fmt.Sprintf("GPU memory %.0fMB near the %.0fMB budget: compress textures or unload distant assets", used, m.cfg.MemoryBudgetMB)})
		case ratio > 0.75:
			out = append(out, finding{10, "GPU memory usage is high: prefer compressed texture formats"})
		}
	}

	budget := m.cfg.DrawCallBudget
	switch {
	case t.DrawCalls > budget:
		out = append(out, finding{15, fmt.Sprintf("%d draw calls exceed the budget of %d: merge geometries or use instancing", t.DrawCalls, budget)})
	case t.DrawCalls > budget*3/4:
		out = append(out, finding{5, "draw calls approaching the budget"})
	}

	if net.Requests > 0 {
		switch {
		case net.AvgLatencyMs > 1000:
			out = append(out, finding{15, fmt.Sprintf("average network latency %.0fms: preload assets earlier or use a closer CDN", net.AvgLatencyMs)})
		case net.AvgLatencyMs > 300:
			out = append(out, finding{5, "network latency is elevated"})
		}
		if float64(net.Failures)/float64(net.Requests) > 0.1 {
			out = append(out, finding{10, fmt.Sprintf("%d of %d recent requests failed", net.Failures, net.Requests)})
		}
		if net.Requests >= 10 && net.HitRatio < 0.2 {
			out = append(out, finding{0, "cache hit ratio is low: warm the cache for frequently viewed assets"})
		}
	}

	return out
}

// HealthScore 0–100 的健康分，综合帧率、显存、绘制调用与网络惩罚
func (m *PerformanceMonitor) HealthScore() int {
	score := 100
	for _, f := range m.findings() {
		score -= f.penalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Suggestions 可读的优化建议
func (m *PerformanceMonitor) Suggestions() []string {
	fs := m.findings()
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.suggestion)
	}
	return out
}

// StatsString 单行实时统计
func (m *PerformanceMonitor) StatsString() string {
	t := m.Telemetry()
	net := m.Network()

	mem := "unknown"
	if v, ok := t.MemoryUsageMB.Get(); ok {
		mem = fmt.Sprintf("%.1fMB", v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FPS: %.1f | Render: %.2fms | Draw calls: %d | Triangles: %d | Memory: %s",
		t.FrameRate, t.RenderTimeMs, t.DrawCalls, t.TriangleCount, mem)
	fmt.Fprintf(&b, " | Net: %d req, %.0fms avg, %d failed, hit %.0f%%",
		net.Requests, net.AvgLatencyMs, net.Failures, net.HitRatio*100)
	fmt.Fprintf(&b, " | Health: %d", m.HealthScore())
	return b.String()
}

// Report 诊断报告
type Report struct {
	HealthScore   int          `json:"health_score"`
	Suggestions   []string     `json:"suggestions"`
	Frame         FrameSample  `json:"frame"`
	Render        RenderStats  `json:"render"`
	MemoryUsageMB string       `json:"memory_usage_mb"`
	Network       NetworkStats `json:"network"`
	Battery       string       `json:"battery"`
	GPU           string       `json:"gpu"`
	Stats         string       `json:"stats"`
}

// Report 生成诊断报告。缺失的能力以 "unknown" 表示。
func (m *PerformanceMonitor) Report() Report {
	m.mu.RLock()
	frame, render := m.last, m.render
	m.mu.RUnlock()

	battery := "unknown"
	if b, ok := m.env.Battery.Get(); ok {
		battery = fmt.Sprintf("%.0f%%", b.Level*100)
		if b.Charging {
			battery += " (charging)"
		}
	}

	return Report{
		HealthScore:   m.HealthScore(),
		Suggestions:   m.Suggestions(),
		Frame:         frame,
		Render:        render,
		MemoryUsageMB: render.MemoryUsageMB.String(),
		Network:       m.Network(),
		Battery:       battery,
		GPU:           m.env.GPURenderer.String(),
		Stats:         m.StatsString(),
	}
}
