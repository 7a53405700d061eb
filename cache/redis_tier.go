package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	redismgr "github.com/BaSui01/assetflow/internal/cache"
)

const redisKeyPrefix = "assetflow:disk:"

// RedisTier 共享磁盘缓存层，记录格式与 LevelDBTier 相同，过期由 Redis 原生 TTL 负责
type RedisTier struct {
	mgr    *redismgr.Manager
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisTier 基于已连接的 Redis 管理器创建缓存层
func NewRedisTier(mgr *redismgr.Manager, logger *zap.Logger) *RedisTier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTier{
		mgr:    mgr,
		logger: logger.With(zap.String("component", "cache.redis")),
		now:    time.Now,
	}
}

func (t *RedisTier) Name() TierName { return TierDisk }

func (t *RedisTier) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := t.mgr.Get(ctx, redisKeyPrefix+key)
	if redismgr.IsCacheMiss(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return decodeDiskRecord(key, raw)
}

func (t *RedisTier) Put(ctx context.Context, e *Entry) error {
	ttl := e.Remaining(t.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := encodeDiskRecord(e)
	if err != nil {
		return err
	}
	return t.mgr.Set(ctx, redisKeyPrefix+e.Key, raw, ttl)
}

func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.mgr.Delete(ctx, redisKeyPrefix+key)
}

// EvictExpired Redis 自行过期键，无需扫描
func (t *RedisTier) EvictExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (t *RedisTier) Clear(ctx context.Context) error {
	var keys []string
	if err := t.mgr.ScanPrefix(ctx, redisKeyPrefix, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	return t.mgr.Delete(ctx, keys...)
}

func (t *RedisTier) Stats(ctx context.Context) (TierStats, error) {
	var st TierStats
	err := t.mgr.ScanPrefix(ctx, redisKeyPrefix, func(key string) error {
		n, err := t.mgr.StrLen(ctx, key)
		if err != nil {
			return fmt.Errorf("strlen %s: %w", key, err)
		}
		// 扫描与读取之间键可能已过期
		if n > 0 {
			st.Entries++
			st.Bytes += n
		}
		return nil
	})
	return st, err
}

func (t *RedisTier) Close() error {
	err := t.mgr.Close()
	if errors.Is(err, redismgr.ErrClosed) {
		return nil
	}
	return err
}
