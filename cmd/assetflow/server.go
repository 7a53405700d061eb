package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/assetflow"
	"github.com/BaSui01/assetflow/config"
	"github.com/BaSui01/assetflow/device"
	"github.com/BaSui01/assetflow/internal/ctxkeys"
	"github.com/BaSui01/assetflow/internal/server"
	"github.com/BaSui01/assetflow/loader"
)

const (
	// 预加载与取消接口的每 IP 限流
	mutateRPS   = 20
	mutateBurst = 40
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 `assetflow serve` 的诊断与指标服务
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	engine     *assetflow.Engine

	httpManager    *server.Manager
	metricsManager *server.Manager
	reloader       *config.Reloader

	// 限流清理 goroutine 的生命周期
	limiterCancel context.CancelFunc
}

// NewServer 创建服务器实例，engine 由调用方创建并负责关闭
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, engine *assetflow.Engine) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger.With(zap.String("component", "serve")),
		level:      level,
		engine:     engine,
	}
}

// runServe 加载配置、启动引擎与服务器，阻塞到收到退出信号
func runServe(args []string) error {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting AssetFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := assetflow.New(ctx, cfg, logger, assetflow.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("Engine shutdown error", zap.Error(err))
		}
	}()
	eng.Start(ctx)

	srv := NewServer(cfg, *configPath, logger, level, eng)
	if err := srv.Start(ctx); err != nil {
		srv.Shutdown()
		return err
	}

	err = server.Wait(ctx, srv.httpManager, srv.metricsManager)
	srv.Shutdown()
	return err
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动配置重载、HTTP 服务与指标服务
func (s *Server) Start(ctx context.Context) error {
	if err := s.initReloader(ctx); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
	)
	return nil
}

// initReloader 配置文件变更时调整日志级别；无配置文件时跳过
func (s *Server) initReloader(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}

	r, err := config.NewReloader(s.configPath, s.cfg, config.WithReloaderLogger(s.logger))
	if err != nil {
		return err
	}
	r.OnReload(func(old, updated *config.Config) {
		if old.Log.Level != updated.Log.Level {
			s.level.SetLevel(parseLevel(updated.Log.Level))
			s.logger.Info("Log level changed",
				zap.String("from", old.Log.Level),
				zap.String("to", updated.Log.Level),
			)
		}
		if old.Cache != updated.Cache || old.Loader != updated.Loader || old.Server != updated.Server {
			s.logger.Warn("Cache, loader and server settings take effect after restart")
		}
	})
	if err := r.Start(ctx); err != nil {
		return err
	}
	s.reloader = r
	return nil
}

// Handler 构建带中间件链的路由
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	mux.HandleFunc("GET /debug/quality", s.handleQuality)
	mux.HandleFunc("GET /debug/cache", s.handleCache)
	mux.HandleFunc("GET /debug/device", s.handleDevice)
	mux.HandleFunc("GET /debug/loader", s.handleLoader)

	limit := RateLimiter(ctx, mutateRPS, mutateBurst, s.logger)
	mux.Handle("POST /v1/preload", limit(http.HandlerFunc(s.handlePreload)))
	mux.Handle("DELETE /v1/loads", limit(http.HandlerFunc(s.handleCancel)))

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if c := s.engine.Metrics(); c != nil {
		middlewares = append(middlewares, MetricsMiddleware(c))
	}
	middlewares = append(middlewares, OTelTracing())

	return Chain(mux, middlewares...)
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	limiterCtx, cancel := context.WithCancel(ctx)
	s.limiterCancel = cancel

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager("http", s.Handler(limiterCtx), serverConfig, s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.engine.Metrics() == nil {
		s.logger.Info("Metrics disabled, skipping metrics server")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 优雅关闭所有服务，引擎由 runServe 关闭
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.reloader != nil {
		s.reloader.Stop()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.limiterCancel != nil {
		s.limiterCancel()
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🔌 Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.engine.Health(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"tier":   s.engine.Profile().Tier,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Quality().Report())
}

type cacheView struct {
	Stats    any     `json:"stats"`
	HitRatio float64 `json:"hit_ratio"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Cache().Stats(r.Context())
	writeJSON(w, http.StatusOK, cacheView{Stats: stats, HitRatio: stats.HitRatio()})
}

// profileView CapabilityProfile 的 JSON 视图
type profileView struct {
	Tier               device.Tier `json:"tier"`
	MaxPolygonCount    int         `json:"max_polygon_count"`
	MaxFileSizeBytes   int64       `json:"max_file_size_bytes"`
	MemoryLimitBytes   int64       `json:"memory_limit_bytes"`
	RecommendedFormats []string    `json:"recommended_formats"`
}

func newProfileView(p device.CapabilityProfile) profileView {
	return profileView{
		Tier:               p.Tier,
		MaxPolygonCount:    p.MaxPolygonCount,
		MaxFileSizeBytes:   p.MaxFileSizeBytes,
		MemoryLimitBytes:   p.MemoryLimitBytes,
		RecommendedFormats: p.Formats(),
	}
}

// handleDevice 返回引擎自身的画像，以及根据请求头推断的客户端画像
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":   newProfileView(s.engine.Profile()),
		"client":   newProfileView(device.ProfileFromHeaders(r.Header)),
		"settings": s.engine.Settings(),
	})
}

func (s *Server) handleLoader(w http.ResponseWriter, r *http.Request) {
	l := s.engine.Loader()
	writeJSON(w, http.StatusOK, map[string]any{
		"telemetry":     l.Telemetry(),
		"strategy":      l.Classify(loader.Options{}).String(),
		"in_flight":     l.InFlight(),
		"preload_queue": l.PreloadQueueLen(),
	})
}

// handlePreload POST /v1/preload?url=...&priority=high
func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	priority, err := parsePreloadPriority(r.URL.Query().Get("priority"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.Loader().Preload(url, priority); err != nil {
		switch {
		case errors.Is(err, loader.ErrPreloadQueueFull):
			writeJSONError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, loader.ErrClosed):
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	fields := []zap.Field{zap.String("url", url), zap.Int("priority", priority)}
	if id, ok := ctxkeys.RequestID(r.Context()); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctxkeys.TraceID(r.Context()); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	s.logger.Info("preload queued", fields...)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"url":      url,
		"priority": priority,
		"queued":   s.engine.Loader().PreloadQueueLen(),
	})
}

// handleCancel DELETE /v1/loads?url=...
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       url,
		"cancelled": s.engine.Loader().CancelLoad(url),
	})
}

// parsePreloadPriority 接受 low/normal/high 或整数
func parsePreloadPriority(s string) (int, error) {
	if s == "" {
		return int(loader.PriorityNormal), nil
	}
	if p, err := parsePriority(s); err == nil {
		return int(p), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
