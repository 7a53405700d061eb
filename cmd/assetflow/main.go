// =============================================================================
// AssetFlow 主入口
// =============================================================================
// 资源加载、缓存维护与诊断服务的命令行入口
//
// 使用方法:
//
//	assetflow fetch https://cdn.example.com/robot.glb          # 通过引擎加载一个资源
//	assetflow fetch --out robot.glb --priority high <url>       # 写入文件
//	assetflow serve --config config.yaml                        # 启动诊断与指标服务
//	assetflow sweep                                             # 清理过期缓存
//	assetflow migrate up                                        # 运行数据库迁移
//	assetflow migrate status                                    # 查看迁移状态
//	assetflow health --addr http://localhost:8080               # 健康检查
//	assetflow version                                           # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/assetflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 分发子命令并返回退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "fetch":
		err = runFetch(args[1:], stdout)
	case "serve":
		err = runServe(args[1:])
	case "sweep":
		err = runSweep(args[1:], stdout)
	case "migrate":
		err = runMigrate(args[1:], stdout)
	case "health":
		err = runHealthCheck(args[1:], stdout)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := newFlagSet("health")
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "AssetFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `AssetFlow - Adaptive asset delivery and caching engine

Usage:
  assetflow <command> [options]

Commands:
  fetch     Load one asset through the engine
  serve     Start the diagnostics and metrics server
  sweep     Remove expired entries from every cache tier
  migrate   Database migration commands
  health    Check server health
  version   Show version information
  help      Show this help message

Options for 'fetch':
  --config <path>      Path to configuration file (YAML)
  --out <path>         Write the asset to a file
  --priority <p>       low, normal or high (default: normal)
  --streaming          Request chunked streaming
  --timeout <d>        Overall deadline (default: 2m)

Options for 'serve' and 'sweep':
  --config <path>      Path to configuration file (YAML)

Examples:
  assetflow fetch --out robot.glb https://cdn.example.com/robot.glb
  assetflow serve --config /etc/assetflow/config.yaml
  assetflow sweep
  assetflow migrate up
  assetflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 配置与日志
// =============================================================================

// loadConfig 加载配置文件与 ASSETFLOW_* 环境变量
func loadConfig(path string) (*config.Config, error) {
	l := config.NewLoader()
	if path != "" {
		l = l.WithConfigPath(path)
	}
	cfg, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger 按配置构建 logger。返回的 AtomicLevel 供配置重载时调整级别。
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            level,
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    !cfg.EnableCaller,
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
