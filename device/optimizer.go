package device

// Settings 渲染器配置
type Settings struct {
	ShadowsEnabled       bool    `json:"shadows_enabled"`
	Antialiasing         bool    `json:"antialiasing"`
	PixelRatioCap        float64 `json:"pixel_ratio_cap"`
	TextureQualityFactor float64 `json:"texture_quality_factor"`
}

// OptimizationSettingsFor 根据设备画像推导渲染器配置
func OptimizationSettingsFor(p CapabilityProfile) Settings {
	switch p.Tier {
	case TierMobile:
		return Settings{
			ShadowsEnabled:       false,
			Antialiasing:         false,
			PixelRatioCap:        1.5,
			TextureQualityFactor: 0.5,
		}
	case TierTablet:
		return Settings{
			ShadowsEnabled:       false,
			Antialiasing:         true,
			PixelRatioCap:        2,
			TextureQualityFactor: 0.75,
		}
	default:
		return Settings{
			ShadowsEnabled:       true,
			Antialiasing:         true,
			PixelRatioCap:        2,
			TextureQualityFactor: 1,
		}
	}
}

// LevelSpec 一个 LOD 等级：距离阈值与质量系数
type LevelSpec struct {
	Distance float64 `json:"distance" yaml:"distance"`
	Quality  float64 `json:"quality" yaml:"quality"`
}

// QualityPolicy 质量控制策略
type QualityPolicy struct {
	Levels []LevelSpec `json:"levels"`
	// 初始是否启用自适应降级
	StartEnabled bool `json:"start_enabled"`
	// 帧率过低时允许强制启用
	AllowForceEnable bool `json:"allow_force_enable"`
	// 帧率充裕时允许自动关闭
	AllowAutoDisable bool `json:"allow_auto_disable"`
}

// QualityPolicyFor 根据设备画像返回 LOD 策略。
// 移动端降级最激进且默认开启；桌面端默认关闭，仅由性能覆盖触发。
func QualityPolicyFor(p CapabilityProfile) QualityPolicy {
	switch p.Tier {
	case TierMobile:
		return QualityPolicy{
			Levels: []LevelSpec{
				{Distance: 10, Quality: 1},
				{Distance: 25, Quality: 0.6},
				{Distance: 50, Quality: 0.35},
				{Distance: 100, Quality: 0.15},
			},
			StartEnabled:     true,
			AllowForceEnable: true,
		}
	case TierTablet:
		return QualityPolicy{
			Levels: []LevelSpec{
				{Distance: 15, Quality: 1},
				{Distance: 40, Quality: 0.7},
				{Distance: 80, Quality: 0.4},
			},
			StartEnabled:     true,
			AllowForceEnable: true,
		}
	default:
		return QualityPolicy{
			Levels: []LevelSpec{
				{Distance: 25, Quality: 1},
				{Distance: 75, Quality: 0.8},
				{Distance: 150, Quality: 0.5},
			},
			StartEnabled:     false,
			AllowForceEnable: true,
			AllowAutoDisable: true,
		}
	}
}
