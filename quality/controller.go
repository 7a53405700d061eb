package quality

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/assetflow/device"
)

var (
	// ErrUnknownAsset 资源未注册
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNilAsset 注册了空资源
	ErrNilAsset = errors.New("asset is nil")
)

// =============================================================================
// 🎚️ LOD 控制器
// =============================================================================

// Config 控制器配置
type Config struct {
	// 帧率下限，低于时允许强制开启降级
	LowFPS float64 `yaml:"low_fps" json:"low_fps"`
	// 帧率上限，高于时允许关闭降级
	HighFPS float64 `yaml:"high_fps" json:"high_fps"`
	// 质量系数为 0 时的最大粗糙度增量与金属度减量
	RoughnessBias float64 `yaml:"roughness_bias" json:"roughness_bias"`
	MetalnessBias float64 `yaml:"metalness_bias" json:"metalness_bias"`
	// 质量系数低于该值时关闭细节贴图
	DetailCutoff float64 `yaml:"detail_cutoff" json:"detail_cutoff"`
	// 质量系数不高于该值时隐藏半径小于 SmallObjectRadius 的节点
	HideCutoff        float64 `yaml:"hide_cutoff" json:"hide_cutoff"`
	SmallObjectRadius float64 `yaml:"small_object_radius" json:"small_object_radius"`
}

// DefaultConfig 默认控制器配置
func DefaultConfig() Config {
	return Config{
		LowFPS:            30,
		HighFPS:           55,
		RoughnessBias:     0.4,
		MetalnessBias:     0.3,
		DetailCutoff:      0.5,
		HideCutoff:        0.2,
		SmallObjectRadius: 0.5,
	}
}

// Recorder 指标上报，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordLevelChange(level int)
	SetQualityState(enabled bool, frameRate float64, healthScore int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLevelChange(int)              {}
func (nopRecorder) SetQualityState(bool, float64, int) {}

// Option 控制器选项
type Option func(*Controller)

// WithRecorder 设置指标上报
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

type materialBaseline struct {
	roughness float64
	metalness float64
	detail    bool
}

type tracked struct {
	asset     Asset
	level     int
	materials []materialBaseline
	visible   []bool
}

// Controller 按距离与帧率调整资源细节等级
type Controller struct {
	cfg     Config
	levels  Levels
	policy  device.QualityPolicy
	monitor *PerformanceMonitor

	recorder Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	enabled bool
	assets  map[string]*tracked
}

// NewController 根据设备策略创建控制器。monitor 为 nil 时使用默认监控器。
func NewController(policy device.QualityPolicy, cfg Config, monitor *PerformanceMonitor, logger *zap.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	levels, err := LevelsFromPolicy(policy.Levels)
	if err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.LowFPS <= 0 {
		cfg.LowFPS = def.LowFPS
	}
	if cfg.HighFPS <= 0 {
		cfg.HighFPS = def.HighFPS
	}
	if cfg.RoughnessBias <= 0 {
		cfg.RoughnessBias = def.RoughnessBias
	}
	if cfg.MetalnessBias <= 0 {
		cfg.MetalnessBias = def.MetalnessBias
	}
	if cfg.DetailCutoff <= 0 {
		cfg.DetailCutoff = def.DetailCutoff
	}
	if cfg.HideCutoff <= 0 {
		cfg.HideCutoff = def.HideCutoff
	}
	if cfg.SmallObjectRadius <= 0 {
		cfg.SmallObjectRadius = def.SmallObjectRadius
	}
	if cfg.HighFPS <= cfg.LowFPS {
		return nil, fmt.Errorf("high fps %v must be above low fps %v", cfg.HighFPS, cfg.LowFPS)
	}
	if monitor == nil {
		monitor = NewPerformanceMonitor(DefaultMonitorConfig(), device.Environment{}, nil, logger)
	}

	c := &Controller{
		cfg:      cfg,
		levels:   levels,
		policy:   policy,
		monitor:  monitor,
		recorder: nopRecorder{},
		logger:   logger.With(zap.String("component", "quality")),
		enabled:  policy.StartEnabled,
		assets:   make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("quality controller initialized",
		zap.Int("levels", len(levels)),
		zap.Bool("enabled", c.enabled),
		zap.Bool("allow_force_enable", policy.AllowForceEnable),
		zap.Bool("allow_auto_disable", policy.AllowAutoDisable),
	)
	return c, nil
}

// Levels 等级表副本
func (c *Controller) Levels() Levels {
	return append(Levels(nil), c.levels...)
}

// Monitor 关联的性能监控器
func (c *Controller) Monitor() *PerformanceMonitor { return c.monitor }

// Register 记录资源基线并开始跟踪，初始为 0 级。重复注册会替换旧记录。
func (c *Controller) Register(a Asset) error {
	if a == nil {
		return ErrNilAsset
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// 先恢复旧记录，避免把降级后的属性当作基线
	if old, ok := c.assets[a.ID()]; ok {
		c.applyLocked(old, 0)
	}

	t := &tracked{asset: a}
	for _, m := range a.Materials() {
		t.materials = append(t.materials, materialBaseline{
			roughness: m.Roughness(),
			metalness: m.Metalness(),
			detail:    m.DetailMaps(),
		})
	}
	for _, n := range a.Nodes() {
		t.visible = append(t.visible, n.Visible())
	}
	c.assets[a.ID()] = t
	return nil
}

// Unregister 恢复资源原貌并停止跟踪
func (c *Controller) Unregister(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	c.applyLocked(t, 0)
	delete(c.assets, id)
	return nil
}

// Update 每帧调用：按视点距离为每个资源选择等级，仅在变化时应用。
// 返回等级发生变化的资源数。
func (c *Controller) Update(viewpoint Vec3) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, t := range c.assets {
		target := 0
		if c.enabled {
			target = c.levels.Select(viewpoint.Distance(t.asset.Position()))
		}
		if target == t.level {
			continue
		}
		c.applyLocked(t, target)
		changed++
	}
	return changed
}

// Apply 手动为资源应用等级，越界等级会被截断
func (c *Controller) Apply(id string, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	c.applyLocked(t, c.clamp(level))
	return nil
}

// CurrentLevel 资源当前等级
func (c *Controller) CurrentLevel(id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.assets[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return t.level, nil
}

// Enabled 自适应降级是否开启
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled 开关自适应降级。关闭时所有资源立即恢复到 0 级。
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setEnabledLocked(enabled)
}

func (c *Controller) setEnabledLocked(enabled bool) {
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		for _, t := range c.assets {
			c.applyLocked(t, 0)
		}
	}
}

// RecordFrame 每帧调用。采样窗口满时按帧率决定是否开关降级。
func (c *Controller) RecordFrame(frameTime, renderTime time.Duration) {
	sample, ok := c.monitor.RecordFrame(frameTime, renderTime)
	if !ok {
		return
	}

	c.mu.Lock()
	was := c.enabled
	switch {
	case sample.FrameRate < c.cfg.LowFPS && c.policy.AllowForceEnable:
		c.setEnabledLocked(true)
	case sample.FrameRate > c.cfg.HighFPS && c.policy.AllowAutoDisable:
		c.setEnabledLocked(false)
	}
	now := c.enabled
	c.mu.Unlock()

	if now != was {
		c.logger.Info("adaptive quality toggled by frame rate",
			zap.Bool("enabled", now),
			zap.Float64("fps", sample.FrameRate),
			zap.Float64("render_ms", sample.RenderTimeMs),
		)
	}
	c.recorder.SetQualityState(now, sample.FrameRate, c.monitor.HealthScore())
}

// AssetLevel 报告中的单个资源等级
type AssetLevel struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// ControllerReport 控制器与监控器的合并报告
type ControllerReport struct {
	Enabled bool         `json:"enabled"`
	Levels  Levels       `json:"levels"`
	Assets  []AssetLevel `json:"assets"`
	Monitor Report       `json:"monitor"`
}

// Report 当前状态报告，按资源 ID 排序
func (c *Controller) Report() ControllerReport {
	c.mu.Lock()
	rep := ControllerReport{
		Enabled: c.enabled,
		Levels:  c.Levels(),
		Assets:  make([]AssetLevel, 0, len(c.assets)),
	}
	for id, t := range c.assets {
		rep.Assets = append(rep.Assets, AssetLevel{ID: id, Level: t.level})
	}
	c.mu.Unlock()

	sort.Slice(rep.Assets, func(i, j int) bool { return rep.Assets[i].ID < rep.Assets[j].ID })
	rep.Monitor = c.monitor.Report()
	return rep
}

func (c *Controller) clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level >= len(c.levels) {
		return len(c.levels) - 1
	}
	return level
}

// applyLocked 以基线为起点计算并写入属性，只写入与当前值不同的属性
func (c *Controller) applyLocked(t *tracked, level int) {
	q := c.levels.Quality(level)
	loss := 1 - q

	for i, m := range t.asset.Materials() {
		if i >= len(t.materials) {
			break
		}
		base := t.materials[i]
		rough := math.Min(1, base.roughness+loss*c.cfg.RoughnessBias)
		metal := math.Max(0, base.metalness-loss*c.cfg.MetalnessBias)
		detail := base.detail && q >= c.cfg.DetailCutoff
		if level == 0 {
			rough, metal, detail = base.roughness, base.metalness, base.detail
		}

		if m.Roughness() != rough {
			m.SetRoughness(rough)
		}
		if m.Metalness() != metal {
			m.SetMetalness(metal)
		}
		if m.DetailMaps() != detail {
			m.SetDetailMaps(detail)
		}
	}

	for i, n := range t.asset.Nodes() {
		if i >= len(t.visible) {
			break
		}
		visible := t.visible[i]
		if level > 0 && q <= c.cfg.HideCutoff && n.BoundingRadius() < c.cfg.SmallObjectRadius {
			visible = false
		}
		if n.Visible() != visible {
			n.SetVisible(visible)
		}
	}

	if t.level != level {
		t.level = level
		c.recorder.RecordLevelChange(level)
	}
}
