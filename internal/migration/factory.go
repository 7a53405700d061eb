package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/assetflow/config"
)

// NewMigratorFromDatabaseConfig 从应用的数据库配置创建迁移器。
// sqlite 的 Name 为文件路径。
func NewMigratorFromDatabaseConfig(cfg config.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, "")
	case DatabaseTypeSQLite:
		if err := ensureDir(cfg.Name); err != nil {
			return nil, err
		}
		dbURL = BuildDatabaseURL(dbType, "", 0, cfg.Name, "", "", "")
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
	})
}

// NewMigratorFromURL 直接使用连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
	})
}

func ensureDir(name string) error {
	if name == "" || strings.Contains(name, ":memory:") {
		return nil
	}
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}
	return nil
}
