package loader

import "fmt"

// Strategy 加载策略（封闭枚举）
type Strategy int

const (
	StrategyStandard Strategy = iota
	StrategyProgressive
	StrategyStreaming
)

func (s Strategy) String() string {
	switch s {
	case StrategyStandard:
		return "standard"
	case StrategyProgressive:
		return "progressive"
	case StrategyStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Priority 调用方优先级
type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

const (
	// DefaultStreamingBelow 低于该网速（字节/秒）使用分块流式加载
	DefaultStreamingBelow = 1 << 20
	// DefaultProgressiveBelow 低于该网速使用首段优先加载
	DefaultProgressiveBelow = 5 << 20
)

// Thresholds 策略选择的网速阈值
type Thresholds struct {
	StreamingBelow   float64
	ProgressiveBelow float64
}

// DefaultThresholds 默认阈值：1 MB/s 与 5 MB/s
func DefaultThresholds() Thresholds {
	return Thresholds{
		StreamingBelow:   DefaultStreamingBelow,
		ProgressiveBelow: DefaultProgressiveBelow,
	}
}

// Classify 按阈值选择策略，相同输入总是得到相同结果
func (t Thresholds) Classify(speedBytesPerSec float64, opts Options) Strategy {
	switch {
	case opts.Streaming || speedBytesPerSec < t.StreamingBelow:
		return StrategyStreaming
	case opts.Priority == PriorityHigh || speedBytesPerSec < t.ProgressiveBelow:
		return StrategyProgressive
	default:
		return StrategyStandard
	}
}

// Classify 使用默认阈值选择策略
func Classify(speedBytesPerSec float64, opts Options) Strategy {
	return DefaultThresholds().Classify(speedBytesPerSec, opts)
}
