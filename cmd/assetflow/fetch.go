package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/assetflow"
	"github.com/BaSui01/assetflow/loader"
)

// =============================================================================
// 📥 fetch 命令
// =============================================================================

// newFlagSet 子命令参数解析，错误返回给调用方而不是退出进程
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parsePriority 解析 low/normal/high
func parsePriority(s string) (loader.Priority, error) {
	switch strings.ToLower(s) {
	case "low":
		return loader.PriorityLow, nil
	case "", "normal":
		return loader.PriorityNormal, nil
	case "high":
		return loader.PriorityHigh, nil
	default:
		return loader.PriorityNormal, fmt.Errorf("invalid priority %q (want low, normal or high)", s)
	}
}

// fetchOptions fetch 命令参数
type fetchOptions struct {
	configPath string
	out        string
	priority   loader.Priority
	streaming  bool
	timeout    time.Duration
	url        string
}

func parseFetchArgs(args []string) (fetchOptions, error) {
	fs := newFlagSet("fetch")
	configPath := fs.String("config", "", "Path to config file")
	out := fs.String("out", "", "Write the asset to this file")
	priority := fs.String("priority", "normal", "low, normal or high")
	streaming := fs.Bool("streaming", false, "Request chunked streaming")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall deadline")
	if err := fs.Parse(args); err != nil {
		return fetchOptions{}, err
	}
	if fs.NArg() != 1 {
		return fetchOptions{}, errors.New("usage: assetflow fetch [options] <url>")
	}

	p, err := parsePriority(*priority)
	if err != nil {
		return fetchOptions{}, err
	}
	return fetchOptions{
		configPath: *configPath,
		out:        *out,
		priority:   p,
		streaming:  *streaming,
		timeout:    *timeout,
		url:        fs.Arg(0),
	}, nil
}

// runFetch 通过完整引擎加载单个资源：命中缓存时不访问网络，
// 未命中时按网速选择策略并写回缓存。
func runFetch(args []string, stdout io.Writer) error {
	opts, err := parseFetchArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	// 命令行模式不需要指标端口
	cfg.Metrics.Enabled = false

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
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

	return fetch(ctx, eng.Loader(), opts, stdout)
}

// fetch 启动加载并打印进度事件，完成后输出摘要
func fetch(ctx context.Context, l *loader.Loader, opts fetchOptions, stdout io.Writer) error {
	task := l.Start(ctx, opts.url, loader.Options{
		Priority:  opts.priority,
		Streaming: opts.streaming,
	})

	for ev := range task.Events() {
		switch ev.Type {
		case loader.EventFirstChunk:
			fmt.Fprintf(stdout, "first chunk: %s\n", formatProgress(ev.Loaded, ev.Total))
		case loader.EventProgress:
			fmt.Fprintf(stdout, "progress: %s\n", formatProgress(ev.Loaded, ev.Total))
		}
	}

	res, err := task.Wait()
	if err != nil {
		return fmt.Errorf("fetch %s: %w", opts.url, err)
	}

	source := "network"
	if res.FromCache {
		source = "cache"
	}
	fmt.Fprintf(stdout, "url:      %s\n", res.URL)
	fmt.Fprintf(stdout, "strategy: %s\n", res.Strategy)
	fmt.Fprintf(stdout, "bytes:    %d\n", res.Bytes)
	if res.Chunks > 0 {
		fmt.Fprintf(stdout, "chunks:   %d\n", res.Chunks)
	}
	fmt.Fprintf(stdout, "source:   %s\n", source)
	fmt.Fprintf(stdout, "duration: %s\n", res.Duration.Round(time.Millisecond))

	if opts.out != "" {
		if err := writeOutput(opts.out, res.Data); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "written:  %s\n", opts.out)
	}
	return nil
}

func formatProgress(loaded, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%d bytes", loaded)
	}
	return fmt.Sprintf("%d/%d bytes (%.0f%%)", loaded, total, float64(loaded)/float64(total)*100)
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
