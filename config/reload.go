// 配置文件重载器。
//
// 轮询配置文件的修改时间，防抖后重新执行 Loader 并通知回调。
// 只有通过 Validate 的新配置才会替换当前配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadFunc 配置变更回调
type ReloadFunc func(old, new *Config)

// ReloaderOption 重载器选项
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d >= 0 {
			r.debounceDelay = d
		}
	}
}

// WithReloaderLogger 设置日志
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reloader 监听单个配置文件并在变更时重新加载
type Reloader struct {
	path          string
	loader        *Loader
	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger

	mu        sync.RWMutex
	current   *Config
	lastMod   time.Time
	callbacks []ReloadFunc
	running   bool
	stopCh    chan struct{}
	reloads   int
}

// NewReloader 创建重载器，initial 为当前生效的配置
func NewReloader(path string, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if initial == nil {
		initial = DefaultConfig()
	}
	r := &Reloader{
		path:          path,
		loader:        NewLoader().WithConfigPath(path),
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
		current:       initial,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	}
	return r, nil
}

// OnReload 注册变更回调
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Current 当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reloads 成功重载次数
func (r *Reloader) Reloads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reloads
}

// Start 开始轮询，直到 ctx 结束或 Stop
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.mu.Unlock()

	go r.pollLoop(ctx)

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("poll_interval", r.pollInterval))
	return nil
}

// Stop 停止轮询
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.stopCh)
	r.running = false
}

func (r *Reloader) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.changed() {
				debounce = time.After(r.debounceDelay)
			}
		case <-debounce:
			debounce = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("config reload rejected", zap.Error(err))
			}
		}
	}
}

// changed 文件修改时间是否晚于上次记录
func (r *Reloader) changed() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !info.ModTime().After(r.lastMod) {
		return false
	}
	r.lastMod = info.ModTime()
	return true
}

// Reload 立即重新加载。新配置无效时保留旧配置并返回错误。
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.current
	r.current = next
	r.reloads++
	callbacks := append([]ReloadFunc(nil), r.callbacks...)
	r.mu.Unlock()

	r.logger.Info("config reloaded", zap.String("path", r.path))
	for _, cb := range callbacks {
		cb(old, next)
	}
	return nil
}
