package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/assetflow"
	"github.com/BaSui01/assetflow/cache"
)

// =============================================================================
// 🧹 sweep 命令
// =============================================================================

// runSweep 对所有缓存层执行一次过期清理
func runSweep(args []string, stdout io.Writer) error {
	fs := newFlagSet("sweep")
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", time.Minute, "Overall deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = false

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	eng, err := assetflow.New(ctx, cfg, logger, assetflow.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	return sweep(ctx, eng.Cache(), stdout)
}

// sweep 清理并按层打印移除数量
func sweep(ctx context.Context, m *cache.Manager, stdout io.Writer) error {
	res, err := m.EvictExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	for _, tier := range []cache.TierName{cache.TierMemory, cache.TierDisk, cache.TierDurable} {
		if n, ok := res.Removed[tier]; ok {
			fmt.Fprintf(stdout, "%-8s %d\n", tier, n)
		}
	}
	fmt.Fprintf(stdout, "Removed %d expired entries\n", res.Total())
	return nil
}
