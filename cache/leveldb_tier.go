package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const leveldbKeyPrefix = "asset:"

// LevelDBTier 本地磁盘缓存层，键为原始 URL，值为带缓存头的原始响应
type LevelDBTier struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// OpenLevelDBTier 在 path 打开（或创建）磁盘缓存；path 为空时使用内存存储
func OpenLevelDBTier(path string, logger *zap.Logger) (*LevelDBTier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, &opt.Options{
			// 负载已按需压缩
			Compression: opt.NoCompression,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb disk cache: %w", err)
	}

	logger.Info("leveldb disk cache opened", zap.String("path", path))
	return &LevelDBTier{
		db:     db,
		logger: logger.With(zap.String("component", "cache.leveldb")),
	}, nil
}

func (t *LevelDBTier) Name() TierName { return TierDisk }

func (t *LevelDBTier) Get(_ context.Context, key string) (*Entry, error) {
	raw, err := t.db.Get([]byte(leveldbKeyPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return decodeDiskRecord(key, raw)
}

func (t *LevelDBTier) Put(_ context.Context, e *Entry) error {
	raw, err := encodeDiskRecord(e)
	if err != nil {
		return err
	}
	if err := t.db.Put([]byte(leveldbKeyPrefix+e.Key), raw, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (t *LevelDBTier) Delete(_ context.Context, key string) error {
	if err := t.db.Delete([]byte(leveldbKeyPrefix+key), nil); err != nil {
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// EvictExpired 扫描所有记录，删除过期或损坏的记录
func (t *LevelDBTier) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	batch := new(leveldb.Batch)

	iter := t.db.NewIterator(util.BytesPrefix([]byte(leveldbKeyPrefix)), nil)
	for iter.Next() {
		if ctx.Err() != nil {
			break
		}
		expiresAt, err := expiresAtFromHeader(iter.Value())
		if err != nil || !now.Before(expiresAt) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldb scan: %w", err)
	}

	if batch.Len() == 0 {
		return 0, ctx.Err()
	}
	if err := t.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("leveldb write batch: %w", err)
	}
	return batch.Len(), nil
}

func (t *LevelDBTier) Clear(_ context.Context) error {
	batch := new(leveldb.Batch)
	iter := t.db.NewIterator(util.BytesPrefix([]byte(leveldbKeyPrefix)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb scan: %w", err)
	}
	return t.db.Write(batch, nil)
}

func (t *LevelDBTier) Stats(_ context.Context) (TierStats, error) {
	var st TierStats
	iter := t.db.NewIterator(util.BytesPrefix([]byte(leveldbKeyPrefix)), nil)
	for iter.Next() {
		st.Entries++
		st.Bytes += int64(len(iter.Value()))
	}
	iter.Release()
	return st, iter.Error()
}

func (t *LevelDBTier) Close() error {
	return t.db.Close()
}
