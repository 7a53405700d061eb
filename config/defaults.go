// =============================================================================
// 📦 AssetFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Cache:     DefaultCacheConfig(),
		Loader:    DefaultLoaderConfig(),
		Quality:   DefaultQualityConfig(),
		Device:    DeviceConfig{},
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MemoryBudgetBytes: 64 << 20,
		MemoryTTL:         30 * time.Minute,
		ModelTTL:          7 * 24 * time.Hour,
		TextureTTL:        30 * 24 * time.Hour,
		DefaultTTL:        24 * time.Hour,
		SweepInterval:     time.Hour,
		Compression:       true,
		CompressThreshold: 64 << 10,
		Version:           "v1",
		DiskBackend:       "leveldb",
		DiskPath:          "data/assetcache",
		Durable:           false,
	}
}

// DefaultLoaderConfig 返回默认加载器配置
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		ChunkSize:        256 << 10,
		MaxConcurrent:    3,
		StreamingBelow:   1 << 20,
		ProgressiveBelow: 5 << 20,
		Smoothing:        0.3,
		InitialSpeed:     2.5 * (1 << 20),
		FirstSliceBytes:  1 << 20,
		PreloadQueueSize: 32,
		PreloadInterval:  time.Second,
		RequestTimeout:   60 * time.Second,
		EventBuffer:      64,
	}
}

// DefaultQualityConfig 返回默认质量配置
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		LowFPS:            30,
		HighFPS:           55,
		RoughnessBias:     0.4,
		MetalnessBias:     0.3,
		DetailCutoff:      0.5,
		HideCutoff:        0.2,
		SmallObjectRadius: 0.5,
		SampleWindow:      60,
		RenderSampleEvery: 60,
		NetworkWindow:     5 * time.Minute,
		NetworkWindowSize: 256,
		TargetFPS:         60,
		MemoryBudgetMB:    512,
		DrawCallBudget:    500,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "assetflow",
		Password:        "",
		Name:            "data/assetflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "assetflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "assetflow",
	}
}
