package cache

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"time"
)

var (
	// ErrCacheMiss 所有层均未命中
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 缓存已关闭
	ErrClosed = errors.New("cache manager is closed")
	// ErrEntryTooLarge 条目超过内存预算
	ErrEntryTooLarge = errors.New("entry exceeds memory budget")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Kind 资源类型
type Kind string

const (
	KindModel   Kind = "model"
	KindTexture Kind = "texture"
	KindOther   Kind = "other"
)

// TierName 缓存层名称
type TierName string

const (
	TierMemory  TierName = "memory"
	TierDisk    TierName = "disk"
	TierDurable TierName = "durable"
)

// Metadata 条目元数据
type Metadata struct {
	Kind        Kind              `json:"kind"`
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Entry 缓存条目。写入后不可修改，更新总是整体替换。
type Entry struct {
	Key        string        `json:"key"`
	Payload    []byte        `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl"`
	SizeBytes  int64         `json:"size_bytes"`
	Version    string        `json:"version"`
	Metadata   Metadata      `json:"metadata"`
	Compressed bool          `json:"compressed"`
}

// ExpiresAt 过期时间
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired 在 now 时刻是否已过期
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Remaining 剩余有效期
func (e *Entry) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt().Sub(now)
}

// snapshot 返回负载独立的副本，调用方修改不会影响缓存
func (e *Entry) snapshot() *Entry {
	return e.withPayload(bytes.Clone(e.Payload), e.Compressed)
}

// withPayload 返回替换了负载的副本
func (e *Entry) withPayload(payload []byte, compressed bool) *Entry {
	cp := *e
	cp.Payload = payload
	cp.Compressed = compressed
	cp.Metadata = e.Metadata.clone()
	return &cp
}

// Tier 单个缓存层。Get 未命中时返回 ErrCacheMiss；过期判断由 Manager 负责。
type Tier interface {
	Name() TierName
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	EvictExpired(ctx context.Context, now time.Time) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (TierStats, error)
	Close() error
}

// TierStats 单层统计
type TierStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Stats 缓存统计信息
type Stats struct {
	TotalBytes          int64              `json:"total_bytes"`
	EntryCounts         map[TierName]int   `json:"entry_counts"`
	TierBytes           map[TierName]int64 `json:"tier_bytes"`
	MemoryResidentBytes int64              `json:"memory_resident_bytes"`
	MemoryBudgetBytes   int64              `json:"memory_budget_bytes"`
	Hits                map[TierName]int64 `json:"hits"`
	Misses              int64              `json:"misses"`
	Evictions           int64              `json:"evictions"`
}

// HitRatio 命中率（任一层命中计为命中）
func (s Stats) HitRatio() float64 {
	var hits int64
	for _, h := range s.Hits {
		hits += h
	}
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// SweepResult 一次过期清理的结果
type SweepResult struct {
	Removed map[TierName]int `json:"removed"`
}

// Total 清理总数
func (r SweepResult) Total() int {
	n := 0
	for _, v := range r.Removed {
		n += v
	}
	return n
}

// Recorder 指标上报接口，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordCacheHit(tier string)
	RecordCacheMiss(tier string)
	RecordCacheEviction(tier string, n int)
	SetCacheResidentBytes(bytes int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)           {}
func (nopRecorder) RecordCacheMiss(string)          {}
func (nopRecorder) RecordCacheEviction(string, int) {}
func (nopRecorder) SetCacheResidentBytes(int64)     {}
