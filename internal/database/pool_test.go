package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/assetflow/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func memoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return db
}

type recordedQuery struct {
	database  string
	operation string
}

type fakeRecorder struct {
	mu      sync.Mutex
	conns   int
	queries []recordedQuery
}

func (r *fakeRecorder) RecordDBConnections(database string, open, idle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns++
}

func (r *fakeRecorder) RecordDBQuery(database, operation string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, recordedQuery{database: database, operation: operation})
}

func (r *fakeRecorder) connReports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns
}

func (r *fakeRecorder) operations() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]bool)
	for _, q := range r.queries {
		ops[q.operation] = true
	}
	return ops
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	cfg := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, cfg, manager.config)
	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_Rejects(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)

	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	_, err = NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 5}, nil)
	assert.ErrorContains(t, err, "invalid pool config")
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_GetStats(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	assert.NoError(t, manager.Close(), "second close is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorContains(t, manager.Ping(context.Background()), "closed")
}

func TestPoolManager_HealthLoopReportsConnections(t *testing.T) {
	db := memoryDB(t)
	rec := &fakeRecorder{}

	cfg := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	cfg.HealthCheckInterval = 20 * time.Millisecond

	manager, err := NewPoolManager(db, cfg, zaptest.NewLogger(t), WithRecorder("durable", rec))
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, 1, rec.connReports(), "reported once at construction")
	assert.Eventually(t, func() bool { return rec.connReports() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestInstrumentQueries(t *testing.T) {
	db := memoryDB(t)
	rec := &fakeRecorder{}
	require.NoError(t, InstrumentQueries(db, "durable", rec))

	type row struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create(&row{Name: "a"}).Error)

	var got row
	require.NoError(t, db.First(&got).Error)
	require.NoError(t, db.Model(&got).Update("name", "b").Error)
	require.NoError(t, db.Delete(&got).Error)

	ops := rec.operations()
	for _, op := range []string{"create", "query", "update", "delete"} {
		assert.True(t, ops[op], "missing timing for %s", op)
	}
	for _, q := range rec.queries {
		assert.Equal(t, "durable", q.database)
	}
}

// =============================================================================
// 🧪 配置与连接测试
// =============================================================================

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{name: "default", config: DefaultPoolConfig()},
		{name: "zero open", config: PoolConfig{MaxOpenConns: 0, MaxIdleConns: 1}, wantErr: true},
		{name: "zero idle", config: PoolConfig{MaxOpenConns: 1, MaxIdleConns: 0}, wantErr: true},
		{name: "idle exceeds open", config: PoolConfig{MaxOpenConns: 2, MaxIdleConns: 3}, wantErr: true},
		{name: "single connection", config: PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "postgres"
	cfg.MaxOpenConns = 40
	cfg.MaxIdleConns = 8

	pc := PoolConfigFrom(cfg)
	assert.Equal(t, 40, pc.MaxOpenConns)
	assert.Equal(t, 8, pc.MaxIdleConns)
	assert.Equal(t, cfg.ConnMaxLifetime, pc.ConnMaxLifetime)

	mem := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxOpenConns: 25})
	assert.Equal(t, 1, mem.MaxOpenConns, "in-memory sqlite keeps a single connection")
	assert.Equal(t, 1, mem.MaxIdleConns)
	assert.NoError(t, mem.Validate())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(config.DatabaseConfig{}, nil)
	assert.ErrorContains(t, err, "not configured")
}

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "assetflow.db")

	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, sqlDB.Ping())
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}
