package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/assetflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 分发 migrate 子命令
func runMigrate(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(stdout)
		return errors.New("missing migrate subcommand")
	}

	sub, rest := args[0], args[1:]
	ctx := context.Background()

	switch sub {
	case "up":
		return withMigrator("migrate up", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		return withMigrator("migrate down", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunDown(ctx)
		})
	case "status":
		return withMigrator("migrate status", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		return withMigrator("migrate version", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "steps":
		n, rest, err := intArg("steps", rest)
		if err != nil {
			return err
		}
		return withMigrator("migrate steps", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunSteps(ctx, n)
		})
	case "force":
		v, rest, err := intArg("force", rest)
		if err != nil {
			return err
		}
		return withMigrator("migrate force", rest, stdout, func(cli *migration.CLI) error {
			return cli.RunForce(ctx, v)
		})
	case "help", "-h", "--help":
		printMigrateUsage(stdout)
		return nil
	default:
		printMigrateUsage(stdout)
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  assetflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  steps N   Apply N migrations (negative rolls back)
  force V   Force set migration version (use with caution)
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  assetflow migrate up
  assetflow migrate up --config /etc/assetflow/config.yaml
  assetflow migrate status --db-type sqlite --db-url "file:assetflow.db?mode=rwc"
  assetflow migrate force 0`)
}

// intArg 读取子命令的首个整数参数
func intArg(sub string, args []string) (int, []string, error) {
	if len(args) < 1 {
		return 0, nil, fmt.Errorf("usage: assetflow migrate %s <n>", sub)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid number: %s", args[0])
	}
	return n, args[1:], nil
}

// withMigrator 按参数创建迁移器，执行 fn 后关闭
func withMigrator(name string, args []string, stdout io.Writer, fn func(cli *migration.CLI) error) error {
	migrator, err := createMigrator(name, args)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	return fn(cli)
}

// createMigrator --db-type 与 --db-url 同时给出时直接使用，否则读取配置
func createMigrator(name string, args []string) (*migration.DefaultMigrator, error) {
	fs := newFlagSet(name)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}
