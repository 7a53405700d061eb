package device

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tier 设备能力等级
type Tier string

const (
	TierMobile  Tier = "mobile"
	TierTablet  Tier = "tablet"
	TierDesktop Tier = "desktop"
)

const (
	kb = 1024
	mb = 1024 * kb
	gb = 1024 * mb
)

// CapabilityProfile 设备能力画像。计算后不可变。
type CapabilityProfile struct {
	Tier               Tier
	MaxPolygonCount    int
	MaxFileSizeBytes   int64
	MemoryLimitBytes   int64
	RecommendedFormats map[string]struct{}
}

// HasFormat 判断格式是否在推荐列表中
func (p CapabilityProfile) HasFormat(format string) bool {
	_, ok := p.RecommendedFormats[strings.ToLower(format)]
	return ok
}

// Formats 返回排序后的推荐格式
func (p CapabilityProfile) Formats() []string {
	out := make([]string, 0, len(p.RecommendedFormats))
	for f := range p.RecommendedFormats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func formatSet(formats ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		set[f] = struct{}{}
	}
	return set
}

// BaseProfile 返回某个等级的基准画像
func BaseProfile(tier Tier) CapabilityProfile {
	switch tier {
	case TierMobile:
		return CapabilityProfile{
			Tier:               TierMobile,
			MaxPolygonCount:    50_000,
			MaxFileSizeBytes:   10 * mb,
			MemoryLimitBytes:   256 * mb,
			RecommendedFormats: formatSet("glb", "draco"),
		}
	case TierTablet:
		return CapabilityProfile{
			Tier:               TierTablet,
			MaxPolygonCount:    150_000,
			MaxFileSizeBytes:   25 * mb,
			MemoryLimitBytes:   512 * mb,
			RecommendedFormats: formatSet("glb", "gltf", "draco"),
		}
	default:
		return CapabilityProfile{
			Tier:               TierDesktop,
			MaxPolygonCount:    500_000,
			MaxFileSizeBytes:   100 * mb,
			MemoryLimitBytes:   2 * gb,
			RecommendedFormats: formatSet("glb", "gltf", "fbx", "obj", "usdz"),
		}
	}
}

// =============================================================================
// 🔍 分级器
// =============================================================================

// Classifier 带记忆化的设备分级器
type Classifier struct {
	env    Environment
	logger *zap.Logger

	mu      sync.Mutex
	profile *CapabilityProfile
}

// NewClassifier 创建分级器。env 只在首次 Classify 时使用。
func NewClassifier(env Environment, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		env:    env,
		logger: logger.With(zap.String("component", "device")),
	}
}

// Classify 返回设备画像；首次调用时计算并缓存
func (c *Classifier) Classify() CapabilityProfile {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile != nil {
		return *c.profile
	}

	p := Classify(c.env)
	c.profile = &p

	c.logger.Info("device classified",
		zap.String("tier", string(p.Tier)),
		zap.Int("max_polygons", p.MaxPolygonCount),
		zap.Int64("memory_limit_bytes", p.MemoryLimitBytes),
		zap.Stringer("device_memory_gb", c.env.DeviceMemoryGB),
		zap.Stringer("gpu", c.env.GPURenderer),
	)
	return p
}

// Reset 清除缓存结果，下次 Classify 重新计算
func (c *Classifier) Reset() {
	c.mu.Lock()
	c.profile = nil
	c.mu.Unlock()
}

// Classify 纯函数分级：UA 优先，其次屏幕与触控启发式，最后按内存限制降级。
func Classify(env Environment) CapabilityProfile {
	tier := classifyTier(env)
	p := BaseProfile(tier)

	// 已知物理内存时，内存上限不超过物理内存的 1/4
	if memGB, ok := env.DeviceMemoryGB.Get(); ok && memGB > 0 {
		ceiling := int64(memGB * gb / 4)
		if ceiling < p.MemoryLimitBytes {
			p.MemoryLimitBytes = ceiling
		}
	}
	return p
}

func classifyTier(env Environment) Tier {
	ua := strings.ToLower(env.UserAgent)

	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return TierTablet
	case strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "windows phone"),
		strings.Contains(ua, "blackberry"),
		strings.Contains(ua, "opera mini"),
		strings.Contains(ua, "iemobile"),
		strings.Contains(ua, "mobile"):
		return TierMobile
	}

	if env.TouchPoints > 0 {
		short := env.ScreenWidth
		if env.ScreenHeight > 0 && (short == 0 || env.ScreenHeight < short) {
			short = env.ScreenHeight
		}
		switch {
		case short > 0 && short < 600:
			return TierMobile
		case short > 0 && short < 1024:
			return TierTablet
		}
	}

	// 低内存桌面设备按平板处理
	if memGB, ok := env.DeviceMemoryGB.Get(); ok && memGB > 0 && memGB < 2 {
		return TierTablet
	}
	return TierDesktop
}
