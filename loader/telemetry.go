package loader

import (
	"sync"
	"time"
)

const (
	// DefaultSmoothing EMA 平滑系数
	DefaultSmoothing = 0.3
	// DefaultInitialSpeed 尚无样本时的网速估计（落在 Progressive 区间）
	DefaultInitialSpeed = 2.5 * (1 << 20)
)

// NetworkTelemetry 指数平滑后的网络状态快照
type NetworkTelemetry struct {
	SpeedBytesPerSec float64   `json:"speed_bytes_per_sec"`
	LatencyMs        float64   `json:"latency_ms"`
	LastUpdate       time.Time `json:"last_update"`
	Samples          int64     `json:"samples"`
}

// estimator 维护 NetworkTelemetry，仅用于选择策略，不会阻塞加载
type estimator struct {
	mu    sync.RWMutex
	alpha float64
	cur   NetworkTelemetry
}

func newEstimator(alpha, initialSpeed float64) *estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	if initialSpeed <= 0 {
		initialSpeed = DefaultInitialSpeed
	}
	return &estimator{
		alpha: alpha,
		cur:   NetworkTelemetry{SpeedBytesPerSec: initialSpeed},
	}
}

// observe 记录一次完成的传输。elapsed 为整次传输耗时，latency 为首个响应头耗时。
func (e *estimator) observe(bytes int64, elapsed, latency time.Duration, now time.Time) NetworkTelemetry {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bytes > 0 && elapsed > 0 {
		speed := float64(bytes) / elapsed.Seconds()
		e.cur.SpeedBytesPerSec = e.alpha*speed + (1-e.alpha)*e.cur.SpeedBytesPerSec
	}
	if latency > 0 {
		ms := float64(latency) / float64(time.Millisecond)
		if e.cur.Samples == 0 {
			e.cur.LatencyMs = ms
		} else {
			e.cur.LatencyMs = e.alpha*ms + (1-e.alpha)*e.cur.LatencyMs
		}
	}
	e.cur.Samples++
	e.cur.LastUpdate = now
	return e.cur
}

func (e *estimator) snapshot() NetworkTelemetry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur
}

func (e *estimator) speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur.SpeedBytesPerSec
}
