package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRecord 持久层表结构。主键为 URL 的 SHA-256，时间以毫秒存储。
type AssetRecord struct {
	Key         string `gorm:"column:cache_key;primaryKey;size:64"`
	URL         string `gorm:"type:text;not null"`
	Payload     []byte `gorm:"not null"`
	Metadata    string `gorm:"type:text"`
	Kind        string `gorm:"size:16;not null"`
	Version     string `gorm:"size:32;not null"`
	SizeBytes   int64  `gorm:"not null"`
	Compressed  bool   `gorm:"not null;default:false"`
	CreatedAtMs int64  `gorm:"not null"`
	TTLMs       int64  `gorm:"column:ttl_ms;not null"`
	ExpiresAtMs int64  `gorm:"index:idx_asset_cache_entries_expires;not null"`
}

// TableName 指定表名
func (AssetRecord) TableName() string {
	return "asset_cache_entries"
}

// DurableStore 基于 GORM 的持久缓存层
type DurableStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDurableStore 创建持久层。表结构由 internal/migration 管理，
// autoMigrate 为 true 时额外执行 AutoMigrate（测试与 sqlite 单机模式）。
func NewDurableStore(db *gorm.DB, autoMigrate bool, logger *zap.Logger) (*DurableStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if autoMigrate {
		if err := db.AutoMigrate(&AssetRecord{}); err != nil {
			return nil, fmt.Errorf("auto migrate asset cache table: %w", err)
		}
	}
	return &DurableStore{
		db:     db,
		logger: logger.With(zap.String("component", "cache.durable")),
	}, nil
}

func (s *DurableStore) Name() TierName { return TierDurable }

func (s *DurableStore) Get(ctx context.Context, key string) (*Entry, error) {
	var rec AssetRecord
	err := s.db.WithContext(ctx).Where("cache_key = ?", HashKey(key)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("durable get: %w", err)
	}

	var meta Metadata
	if rec.Metadata != "" {
		if err := json.Unmarshal([]byte(rec.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("durable metadata %s: %w", rec.Key, err)
		}
	}

	return &Entry{
		Key:        rec.URL,
		Payload:    rec.Payload,
		CreatedAt:  time.UnixMilli(rec.CreatedAtMs),
		TTL:        time.Duration(rec.TTLMs) * time.Millisecond,
		SizeBytes:  rec.SizeBytes,
		Version:    rec.Version,
		Metadata:   meta,
		Compressed: rec.Compressed,
	}, nil
}

func (s *DurableStore) Put(ctx context.Context, e *Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	rec := AssetRecord{
		Key:         HashKey(e.Key),
		URL:         e.Key,
		Payload:     e.Payload,
		Metadata:    string(meta),
		Kind:        string(e.Metadata.Kind),
		Version:     e.Version,
		SizeBytes:   e.SizeBytes,
		Compressed:  e.Compressed,
		CreatedAtMs: e.CreatedAt.UnixMilli(),
		TTLMs:       e.TTL.Milliseconds(),
		ExpiresAtMs: e.ExpiresAt().UnixMilli(),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("durable put: %w", err)
	}
	return nil
}

func (s *DurableStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("cache_key = ?", HashKey(key)).
		Delete(&AssetRecord{}).Error
	if err != nil {
		return fmt.Errorf("durable delete: %w", err)
	}
	return nil
}

// EvictExpired 删除 expires_at_ms <= now 的记录
func (s *DurableStore) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at_ms <= ?", now.UnixMilli()).
		Delete(&AssetRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("durable evict: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *DurableStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&AssetRecord{}).Error
	if err != nil {
		return fmt.Errorf("durable clear: %w", err)
	}
	return nil
}

func (s *DurableStore) Stats(ctx context.Context) (TierStats, error) {
	var row struct {
		Entries int
		Bytes   int64
	}
	err := s.db.WithContext(ctx).
		Model(&AssetRecord{}).
		Select("COUNT(*) AS entries, COALESCE(SUM(LENGTH(payload)), 0) AS bytes").
		Scan(&row).Error
	if err != nil {
		return TierStats{}, fmt.Errorf("durable stats: %w", err)
	}
	return TierStats{Entries: row.Entries, Bytes: row.Bytes}, nil
}

// Close 连接由 internal/database.PoolManager 持有，这里不关闭
func (s *DurableStore) Close() error { return nil }
