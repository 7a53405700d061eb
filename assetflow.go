// Package assetflow 把设备分级、多级缓存、渐进式加载与 LOD 质量控制
// 组装为一个 Engine。
//
// 用法：
//
//	cfg := config.DefaultConfig()
//	eng, err := assetflow.New(ctx, cfg, logger)
//	if err != nil { ... }
//	defer eng.Close()
//	eng.Start(ctx)
//
//	res, err := eng.Loader().Load(ctx, "https://cdn.example.com/scene.glb", loader.Options{})
//
// 所有组件只在 New 中创建一次，通过访问器共享。
package assetflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/assetflow/cache"
	"github.com/BaSui01/assetflow/config"
	"github.com/BaSui01/assetflow/device"
	redismgr "github.com/BaSui01/assetflow/internal/cache"
	"github.com/BaSui01/assetflow/internal/database"
	"github.com/BaSui01/assetflow/internal/metrics"
	"github.com/BaSui01/assetflow/internal/telemetry"
	"github.com/BaSui01/assetflow/internal/tlsutil"
	"github.com/BaSui01/assetflow/loader"
	"github.com/BaSui01/assetflow/quality"
)

// =============================================================================
// ⚙️ 选项
// =============================================================================

// Option 引擎选项
type Option func(*options)

type options struct {
	env          *device.Environment
	httpClient   *http.Client
	collector    *metrics.Collector
	renderSource quality.RenderStatsSource
	db           *gorm.DB
	version      string
}

// WithEnvironment 使用给定环境分级，替代 device.HostEnvironment()
func WithEnvironment(env device.Environment) Option {
	return func(o *options) { o.env = &env }
}

// WithHTTPClient 替换加载器的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMetrics 使用已有的指标收集器，忽略 metrics.enabled
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithRenderStatsSource 设置渲染统计来源
func WithRenderStatsSource(src quality.RenderStatsSource) Option {
	return func(o *options) { o.renderSource = src }
}

// WithDatabase 为持久层使用已打开的连接，不再按 database 配置连接
func WithDatabase(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithVersion 服务版本，写入遥测资源属性
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// =============================================================================
// 🚀 引擎
// =============================================================================

// Engine 持有全部组件
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	profile  device.CapabilityProfile
	settings device.Settings
	policy   device.QualityPolicy

	cache     *cache.Manager
	loader    *loader.Loader
	monitor   *quality.PerformanceMonitor
	quality   *quality.Controller
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	pool      *database.PoolManager
	redis     *redismgr.Manager

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 按配置创建引擎。任一组件失败时已创建的组件会被关闭。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *Engine, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "engine")),
	}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	// 遥测
	var telOpts []telemetry.Option
	if o.version != "" {
		telOpts = append(telOpts, telemetry.WithServiceVersion(o.version))
	}
	e.telemetry, err = telemetry.Init(cfg.Telemetry, logger, telOpts...)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// 指标
	switch {
	case o.collector != nil:
		e.metrics = o.collector
	case cfg.Metrics.Enabled:
		e.metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	// 设备
	e.profile = e.classify(o.env, logger)
	e.settings = device.OptimizationSettingsFor(e.profile)
	e.policy = device.QualityPolicyFor(e.profile)

	// 缓存
	e.cache, err = e.buildCache(ctx, o.db, logger)
	if err != nil {
		return nil, err
	}

	// 质量
	env := device.HostEnvironment()
	if o.env != nil {
		env = *o.env
	}
	e.monitor = quality.NewPerformanceMonitor(monitorConfig(cfg.Quality), env, o.renderSource, logger)

	var qualityOpts []quality.Option
	if e.metrics != nil {
		qualityOpts = append(qualityOpts, quality.WithRecorder(e.metrics))
	}
	e.quality, err = quality.NewController(e.policy, controllerConfig(cfg.Quality), e.monitor, logger, qualityOpts...)
	if err != nil {
		return nil, fmt.Errorf("create quality controller: %w", err)
	}

	// 加载器
	client := o.httpClient
	if client == nil {
		client = tlsutil.AssetHTTPClient(cfg.Loader.MaxConcurrent)
	}
	loaderOpts := []loader.Option{
		loader.WithHTTPClient(client),
		loader.WithCache(e.cache),
		loader.WithObserver(e.monitor),
		loader.WithTracerProvider(e.telemetry.TracerProvider()),
	}
	if e.metrics != nil {
		loaderOpts = append(loaderOpts, loader.WithRecorder(e.metrics))
	}
	e.loader = loader.New(loaderConfig(cfg.Loader), logger, loaderOpts...)

	e.logger.Info("engine initialized",
		zap.String("tier", string(e.profile.Tier)),
		zap.Bool("quality_enabled", e.quality.Enabled()),
		zap.String("disk_backend", cfg.Cache.DiskBackend),
		zap.Bool("durable", cfg.Cache.Durable),
		zap.Bool("metrics", e.metrics != nil),
		zap.Bool("telemetry", e.telemetry.Enabled()),
	)
	return e, nil
}

func (e *Engine) classify(env *device.Environment, logger *zap.Logger) device.CapabilityProfile {
	if tier := e.cfg.Device.Tier; tier != "" {
		p := device.BaseProfile(device.Tier(tier))
		e.logger.Info("device tier fixed by configuration", zap.String("tier", tier))
		return p
	}
	if env == nil {
		host := device.HostEnvironment()
		env = &host
	}
	return device.NewClassifier(*env, logger).Classify()
}

// buildCache 按 cache.disk_backend 与 cache.durable 组装缓存层
func (e *Engine) buildCache(ctx context.Context, db *gorm.DB, logger *zap.Logger) (*cache.Manager, error) {
	cfg := e.cfg
	var opts []cache.Option
	if e.metrics != nil {
		opts = append(opts, cache.WithRecorder(e.metrics))
	}

	// 磁盘层失败时各分支负责关闭已打开的资源
	var disk cache.Tier
	switch cfg.Cache.DiskBackend {
	case "leveldb":
		t, err := cache.OpenLevelDBTier(cfg.Cache.DiskPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open disk cache: %w", err)
		}
		disk = t
	case "redis":
		rc := redismgr.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			rc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		if cfg.Redis.TLS {
			host, _, err := net.SplitHostPort(cfg.Redis.Addr)
			if err != nil {
				host = cfg.Redis.Addr
			}
			rc.TLS = tlsutil.RedisTLSConfig(host)
		}
		mgr, err := redismgr.NewManager(rc, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		e.redis = mgr
		disk = cache.NewRedisTier(mgr, logger)
	}
	if disk != nil {
		opts = append(opts, cache.WithDisk(disk))
	}

	if cfg.Cache.Durable {
		store, err := e.openDurable(ctx, db, logger)
		if err != nil {
			if disk != nil {
				_ = disk.Close()
			}
			return nil, err
		}
		opts = append(opts, cache.WithDurable(store))
	}

	mgr, err := cache.NewManager(cacheConfig(cfg.Cache), logger, opts...)
	if err != nil {
		if disk != nil {
			_ = disk.Close()
		}
		return nil, fmt.Errorf("create cache manager: %w", err)
	}
	return mgr, nil
}

func (e *Engine) openDurable(ctx context.Context, db *gorm.DB, logger *zap.Logger) (*cache.DurableStore, error) {
	cfg := e.cfg.Database
	if db == nil {
		var err error
		db, err = database.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	var poolOpts []database.PoolOption
	if e.metrics != nil {
		poolOpts = append(poolOpts, database.WithRecorder("durable", e.metrics))
	}
	pm, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg), logger, poolOpts...)
	if err != nil {
		return nil, err
	}
	e.pool = pm

	if err := pm.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store, err := cache.NewDurableStore(db, cfg.AutoMigrate, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// =============================================================================
// 🔁 生命周期
// =============================================================================

// Start 启动缓存清理与预加载循环，重复调用无效
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.cache.Start(runCtx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.loader.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, loader.ErrClosed) {
			e.logger.Warn("preload loop stopped", zap.Error(err))
		}
	}()

	e.logger.Info("engine started")
}

// Close 停止后台循环并按依赖逆序关闭组件
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	var errs []error
	if e.loader != nil {
		if err := e.loader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close loader: %w", err))
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if e.pool != nil {
		if err := e.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if e.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	e.logger.Info("engine closed")
	return errors.Join(errs...)
}

// =============================================================================
// 🔍 访问器
// =============================================================================

func (e *Engine) Config() *config.Config { return e.cfg }
func (e *Engine) Cache() *cache.Manager { return e.cache }
func (e *Engine) Loader() *loader.Loader { return e.loader }
func (e *Engine) Quality() *quality.Controller { return e.quality }
func (e *Engine) Monitor() *quality.PerformanceMonitor { return e.monitor }
func (e *Engine) Profile() device.CapabilityProfile { return e.profile }
func (e *Engine) Settings() device.Settings { return e.settings }
func (e *Engine) Policy() device.QualityPolicy { return e.policy }
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }
func (e *Engine) Database() *database.PoolManager { return e.pool }

// Health 检查持久层连接；未启用持久层时总是健康
func (e *Engine) Health(ctx context.Context) error {
	var errs []error
	if e.redis != nil {
		if err := e.redis.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis disk cache: %w", err))
		}
	}
	if e.pool != nil {
		if err := e.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔄 配置转换
// =============================================================================

func cacheConfig(c config.CacheConfig) cache.Config {
	return cache.Config{
		MemoryBudgetBytes: c.MemoryBudgetBytes,
		MemoryTTL:         c.MemoryTTL,
		ModelTTL:          c.ModelTTL,
		TextureTTL:        c.TextureTTL,
		DefaultTTL:        c.DefaultTTL,
		SweepInterval:     c.SweepInterval,
		Compression:       c.Compression,
		CompressThreshold: c.CompressThreshold,
		Version:           c.Version,
	}
}

func loaderConfig(c config.LoaderConfig) loader.Config {
	return loader.Config{
		ChunkSize:        c.ChunkSize,
		MaxConcurrent:    c.MaxConcurrent,
		StreamingBelow:   c.StreamingBelow,
		ProgressiveBelow: c.ProgressiveBelow,
		Smoothing:        c.Smoothing,
		InitialSpeed:     c.InitialSpeed,
		FirstSliceBytes:  c.FirstSliceBytes,
		PreloadQueueSize: c.PreloadQueueSize,
		PreloadInterval:  c.PreloadInterval,
		RequestTimeout:   c.RequestTimeout,
		EventBuffer:      c.EventBuffer,
	}
}

func controllerConfig(c config.QualityConfig) quality.Config {
	return quality.Config{
		LowFPS:            c.LowFPS,
		HighFPS:           c.HighFPS,
		RoughnessBias:     c.RoughnessBias,
		MetalnessBias:     c.MetalnessBias,
		DetailCutoff:      c.DetailCutoff,
		HideCutoff:        c.HideCutoff,
		SmallObjectRadius: c.SmallObjectRadius,
	}
}

func monitorConfig(c config.QualityConfig) quality.MonitorConfig {
	return quality.MonitorConfig{
		SampleWindow:      c.SampleWindow,
		RenderSampleEvery: c.RenderSampleEvery,
		NetworkWindow:     c.NetworkWindow,
		NetworkWindowSize: c.NetworkWindowSize,
		TargetFPS:         c.TargetFPS,
		MemoryBudgetMB:    c.MemoryBudgetMB,
		DrawCallBudget:    c.DrawCallBudget,
	}
}
