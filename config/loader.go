// =============================================================================
// 📦 AssetFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("assetflow.yaml").
//	    WithEnvPrefix("ASSETFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AssetFlow 的完整配置结构
type Config struct {
	// Server 诊断与指标服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Cache 多级缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Loader 渐进式加载配置
	Loader LoaderConfig `yaml:"loader" env:"LOADER"`

	// Quality 自适应质量配置
	Quality QualityConfig `yaml:"quality" env:"QUALITY"`

	// Device 设备分级配置
	Device DeviceConfig `yaml:"device" env:"DEVICE"`

	// Redis 磁盘缓存后端
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 持久层数据库
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（/health 与 /debug/*）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示与 HTTP 端口共用
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// 内存层字节预算
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" env:"MEMORY_BUDGET_BYTES"`
	// 内存层驻留上限
	MemoryTTL time.Duration `yaml:"memory_ttl" env:"MEMORY_TTL"`
	// 各类资源默认 TTL
	ModelTTL   time.Duration `yaml:"model_ttl" env:"MODEL_TTL"`
	TextureTTL time.Duration `yaml:"texture_ttl" env:"TEXTURE_TTL"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 后台清理间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// 下层存储的 zstd 压缩
	Compression       bool  `yaml:"compression" env:"COMPRESSION"`
	CompressThreshold int64 `yaml:"compress_threshold" env:"COMPRESS_THRESHOLD"`
	// 条目版本号，变更后旧条目不再命中
	Version string `yaml:"version" env:"VERSION"`
	// 磁盘层后端: leveldb, redis, none
	DiskBackend string `yaml:"disk_backend" env:"DISK_BACKEND"`
	// LevelDB 目录
	DiskPath string `yaml:"disk_path" env:"DISK_PATH"`
	// 是否启用数据库持久层
	Durable bool `yaml:"durable" env:"DURABLE"`
}

// LoaderConfig 加载器配置
type LoaderConfig struct {
	// 流式分块大小
	ChunkSize int64 `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 网络并发上限
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 策略阈值（字节/秒）
	StreamingBelow   float64 `yaml:"streaming_below" env:"STREAMING_BELOW"`
	ProgressiveBelow float64 `yaml:"progressive_below" env:"PROGRESSIVE_BELOW"`
	// EMA 平滑系数
	Smoothing float64 `yaml:"smoothing" env:"SMOOTHING"`
	// 初始网速估计（字节/秒）
	InitialSpeed float64 `yaml:"initial_speed" env:"INITIAL_SPEED"`
	// Progressive 首段大小
	FirstSliceBytes int64 `yaml:"first_slice_bytes" env:"FIRST_SLICE_BYTES"`
	// 预加载队列
	PreloadQueueSize int           `yaml:"preload_queue_size" env:"PRELOAD_QUEUE_SIZE"`
	PreloadInterval  time.Duration `yaml:"preload_interval" env:"PRELOAD_INTERVAL"`
	// 单次请求超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 事件通道容量
	EventBuffer int `yaml:"event_buffer" env:"EVENT_BUFFER"`
}

// QualityConfig 自适应质量配置
type QualityConfig struct {
	// 帧率阈值
	LowFPS  float64 `yaml:"low_fps" env:"LOW_FPS"`
	HighFPS float64 `yaml:"high_fps" env:"HIGH_FPS"`
	// 材质降级系数
	RoughnessBias float64 `yaml:"roughness_bias" env:"ROUGHNESS_BIAS"`
	MetalnessBias float64 `yaml:"metalness_bias" env:"METALNESS_BIAS"`
	DetailCutoff  float64 `yaml:"detail_cutoff" env:"DETAIL_CUTOFF"`
	// 小物体隐藏
	HideCutoff        float64 `yaml:"hide_cutoff" env:"HIDE_CUTOFF"`
	SmallObjectRadius float64 `yaml:"small_object_radius" env:"SMALL_OBJECT_RADIUS"`
	// 监控采样
	SampleWindow      int           `yaml:"sample_window" env:"SAMPLE_WINDOW"`
	RenderSampleEvery int           `yaml:"render_sample_every" env:"RENDER_SAMPLE_EVERY"`
	NetworkWindow     time.Duration `yaml:"network_window" env:"NETWORK_WINDOW"`
	NetworkWindowSize int           `yaml:"network_window_size" env:"NETWORK_WINDOW_SIZE"`
	// 健康分参考值
	TargetFPS      float64 `yaml:"target_fps" env:"TARGET_FPS"`
	MemoryBudgetMB float64 `yaml:"memory_budget_mb" env:"MEMORY_BUDGET_MB"`
	DrawCallBudget int     `yaml:"draw_call_budget" env:"DRAW_CALL_BUDGET"`
}

// DeviceConfig 设备分级配置
type DeviceConfig struct {
	// 强制指定等级: mobile, tablet, desktop；为空时自动探测
	Tier string `yaml:"tier" env:"TIER"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时由 GORM 建表；关闭时依赖 assetflow migrate
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ASSETFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按时长解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，汇总所有错误
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Cache.MemoryBudgetBytes <= 0 {
		errs = append(errs, "cache.memory_budget_bytes must be positive")
	}
	switch c.Cache.DiskBackend {
	case "leveldb":
		if c.Cache.DiskPath == "" {
			errs = append(errs, "cache.disk_path is required for the leveldb backend")
		}
	case "redis", "none", "":
	default:
		errs = append(errs, fmt.Sprintf("unsupported cache.disk_backend %q (supported: leveldb, redis, none)", c.Cache.DiskBackend))
	}
	if c.Cache.Durable && c.Database.Driver == "" {
		errs = append(errs, "cache.durable requires database.driver")
	}

	if c.Loader.ChunkSize <= 0 {
		errs = append(errs, "loader.chunk_size must be positive")
	}
	if c.Loader.MaxConcurrent <= 0 {
		errs = append(errs, "loader.max_concurrent must be positive")
	}
	if c.Loader.StreamingBelow <= 0 || c.Loader.ProgressiveBelow <= c.Loader.StreamingBelow {
		errs = append(errs, "loader thresholds must satisfy 0 < streaming_below < progressive_below")
	}
	if c.Loader.Smoothing <= 0 || c.Loader.Smoothing > 1 {
		errs = append(errs, "loader.smoothing must be in (0, 1]")
	}
	if c.Loader.FirstSliceBytes > 1<<20 {
		errs = append(errs, "loader.first_slice_bytes must not exceed 1MiB")
	}

	if c.Quality.LowFPS <= 0 || c.Quality.HighFPS <= c.Quality.LowFPS {
		errs = append(errs, "quality fps thresholds must satisfy 0 < low_fps < high_fps")
	}
	if c.Quality.SampleWindow <= 0 {
		errs = append(errs, "quality.sample_window must be positive")
	}

	switch c.Device.Tier {
	case "", "mobile", "tablet", "desktop":
	default:
		errs = append(errs, fmt.Sprintf("unsupported device.tier %q", c.Device.Tier))
	}

	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database.driver %q", c.Database.Driver))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
