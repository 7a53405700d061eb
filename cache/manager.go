package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🗃️ 多级缓存管理器
// =============================================================================

// Config 缓存管理器配置
type Config struct {
	// 内存层字节预算
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`
	// 内存层驻留上限
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl"`
	// 各类资源的默认 TTL
	ModelTTL   time.Duration `yaml:"model_ttl" json:"model_ttl"`
	TextureTTL time.Duration `yaml:"texture_ttl" json:"texture_ttl"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	// 后台清理间隔
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	// 磁盘层与持久层的 zstd 压缩
	Compression       bool  `yaml:"compression" json:"compression"`
	CompressThreshold int64 `yaml:"compress_threshold" json:"compress_threshold"`
	// 写入条目的版本号
	Version string `yaml:"version" json:"version"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MemoryBudgetBytes: 64 << 20,
		MemoryTTL:         30 * time.Minute,
		ModelTTL:          7 * 24 * time.Hour,
		TextureTTL:        30 * 24 * time.Hour,
		DefaultTTL:        24 * time.Hour,
		SweepInterval:     time.Hour,
		Compression:       true,
		CompressThreshold: 64 << 10,
		Version:           "v1",
	}
}

// TTLFor 返回资源类型对应的默认 TTL
func (c Config) TTLFor(kind Kind) time.Duration {
	switch kind {
	case KindModel:
		return c.ModelTTL
	case KindTexture:
		return c.TextureTTL
	default:
		return c.DefaultTTL
	}
}

// Option 管理器选项
type Option func(*Manager)

// WithDisk 设置磁盘层（LevelDBTier 或 RedisTier）
func WithDisk(t Tier) Option {
	return func(m *Manager) { m.disk = t }
}

// WithDurable 设置持久层
func WithDurable(t Tier) Option {
	return func(m *Manager) { m.durable = t }
}

// WithRecorder 设置指标上报
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithClock 替换时钟（测试用），同时作用于内存层
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager 多级缓存：内存 → 磁盘 → 持久。
// 层读取失败视为未命中，写入失败只记录日志。
type Manager struct {
	cfg      Config
	memory   *MemoryTier
	disk     Tier
	durable  Tier
	codec    *Codec
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	hits      map[TierName]*atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	mu      sync.Mutex
	closed  bool
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager 创建缓存管理器
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = def.MemoryBudgetBytes
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = def.MemoryTTL
	}
	if cfg.ModelTTL <= 0 {
		cfg.ModelTTL = def.ModelTTL
	}
	if cfg.TextureTTL <= 0 {
		cfg.TextureTTL = def.TextureTTL
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}

	codec, err := NewCodec(cfg.Compression, cfg.CompressThreshold)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		memory:   NewMemoryTier(cfg.MemoryBudgetBytes, cfg.MemoryTTL),
		codec:    codec,
		recorder: nopRecorder{},
		logger:   logger.With(zap.String("component", "cache")),
		now:      time.Now,
		hits: map[TierName]*atomic.Int64{
			TierMemory:  {},
			TierDisk:    {},
			TierDurable: {},
		},
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.memory.now = m.now

	m.logger.Info("cache manager initialized",
		zap.Int64("memory_budget_bytes", cfg.MemoryBudgetBytes),
		zap.Bool("disk", m.disk != nil),
		zap.Bool("durable", m.durable != nil),
		zap.Bool("compression", cfg.Compression),
	)
	return m, nil
}

// Config 返回生效的配置
func (m *Manager) Config() Config { return m.cfg }

// Memory 返回内存层
func (m *Manager) Memory() *MemoryTier { return m.memory }

// =============================================================================
// 🎯 读写
// =============================================================================

// Get 读取负载，所有层未命中时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	e, _, err := m.GetEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Payload, nil
}

// GetEntry 按 内存 → 磁盘 → 持久 顺序查找，返回条目副本与命中的层
func (m *Manager) GetEntry(ctx context.Context, key string) (*Entry, TierName, error) {
	if m.isClosed() {
		return nil, "", ErrClosed
	}

	if e, ok := m.memory.Lookup(key); ok {
		m.recordHit(TierMemory)
		return e.snapshot(), TierMemory, nil
	}

	for _, t := range m.lowerTiers() {
		e := m.readTier(ctx, t, key)
		if e == nil {
			continue
		}
		m.recordHit(t.Name())
		m.promote(ctx, e, t.Name())
		return e.snapshot(), t.Name(), nil
	}

	m.misses.Add(1)
	m.recorder.RecordCacheMiss("all")
	return nil, "", ErrCacheMiss
}

// readTier 读取单层并解压，任何失败都视为未命中
func (m *Manager) readTier(ctx context.Context, t Tier, key string) *Entry {
	e, err := t.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			m.logger.Warn("cache tier read failed, treating as miss",
				zap.String("tier", string(t.Name())),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		m.recorder.RecordCacheMiss(string(t.Name()))
		return nil
	}

	if e.Expired(m.now()) {
		if err := t.Delete(ctx, key); err != nil {
			m.logger.Debug("delete expired entry failed", zap.String("tier", string(t.Name())), zap.Error(err))
		}
		m.recorder.RecordCacheMiss(string(t.Name()))
		return nil
	}

	decoded, err := m.codec.Decode(e)
	if err != nil {
		m.logger.Warn("corrupt cache entry dropped",
			zap.String("tier", string(t.Name())),
			zap.String("key", key),
			zap.Error(err),
		)
		_ = t.Delete(ctx, key)
		m.recorder.RecordCacheMiss(string(t.Name()))
		return nil
	}
	return decoded
}

// promote 将下层命中的条目提升到更快的层
func (m *Manager) promote(ctx context.Context, e *Entry, from TierName) {
	m.admitMemory(e)
	if from == TierDurable && m.disk != nil {
		m.writeTier(ctx, m.disk, m.codec.Encode(e))
	}
}

// Put 写入所有已配置的层。ttl <= 0 时使用 meta.Kind 的默认 TTL。
// 单层失败不会返回错误。
func (m *Manager) Put(ctx context.Context, key string, data []byte, meta Metadata, ttl time.Duration) error {
	if m.isClosed() {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = m.cfg.TTLFor(meta.Kind)
	}
	if meta.Kind == "" {
		meta.Kind = KindOther
	}
	if meta.SourceURL == "" {
		meta.SourceURL = key
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	e := &Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: m.now(),
		TTL:       ttl,
		SizeBytes: int64(len(payload)),
		Version:   m.cfg.Version,
		Metadata:  meta.clone(),
	}

	stored := m.codec.Encode(e)
	for _, t := range m.lowerTiers() {
		m.writeTier(ctx, t, stored)
	}
	m.admitMemory(e)
	return nil
}

func (m *Manager) writeTier(ctx context.Context, t Tier, e *Entry) {
	if err := t.Put(ctx, e); err != nil {
		m.logger.Warn("cache tier write failed, skipping",
			zap.String("tier", string(t.Name())),
			zap.String("key", e.Key),
			zap.Error(err),
		)
	}
}

func (m *Manager) admitMemory(e *Entry) {
	ok, evicted := m.memory.Admit(e)
	if !ok {
		m.logger.Debug("entry larger than memory budget, not admitted",
			zap.String("key", e.Key),
			zap.Int64("size_bytes", e.SizeBytes),
		)
		return
	}
	if evicted > 0 {
		m.evictions.Add(int64(evicted))
		m.recorder.RecordCacheEviction(string(TierMemory), evicted)
	}
	m.recorder.SetCacheResidentBytes(m.memory.Resident())
}

// Delete 从所有层删除
func (m *Manager) Delete(ctx context.Context, key string) error {
	if m.isClosed() {
		return ErrClosed
	}
	_ = m.memory.Delete(ctx, key)
	for _, t := range m.lowerTiers() {
		if err := t.Delete(ctx, key); err != nil {
			m.logger.Warn("cache tier delete failed",
				zap.String("tier", string(t.Name())),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	m.recorder.SetCacheResidentBytes(m.memory.Resident())
	return nil
}

// Clear 清空所有层
func (m *Manager) Clear(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	var errs []error
	_ = m.memory.Clear(ctx)
	for _, t := range m.lowerTiers() {
		if err := t.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", t.Name(), err))
		}
	}
	m.recorder.SetCacheResidentBytes(0)
	return errors.Join(errs...)
}

// Warm 预热：对未命中的键调用 fetch 并写入缓存，返回成功写入的数量
func (m *Manager) Warm(ctx context.Context, keys []string, fetch func(ctx context.Context, key string) ([]byte, Metadata, error)) (int, error) {
	warmed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, _, err := m.GetEntry(ctx, key); err == nil {
			continue
		} else if errors.Is(err, ErrClosed) {
			return warmed, err
		}

		data, meta, err := fetch(ctx, key)
		if err != nil {
			m.logger.Warn("cache warm fetch failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := m.Put(ctx, key, data, meta, 0); err != nil {
			return warmed, err
		}
		warmed++
	}
	return warmed, nil
}

// =============================================================================
// 🧹 过期清理
// =============================================================================

// EvictExpired 清理所有层的过期条目。可重复、可并发调用。
func (m *Manager) EvictExpired(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Removed: make(map[TierName]int)}
	if m.isClosed() {
		return res, ErrClosed
	}

	now := m.now()
	var errs []error

	n, _ := m.memory.EvictExpired(ctx, now)
	res.Removed[TierMemory] = n

	for _, t := range m.lowerTiers() {
		n, err := t.EvictExpired(ctx, now)
		if err != nil {
			m.logger.Warn("cache tier sweep failed", zap.String("tier", string(t.Name())), zap.Error(err))
			errs = append(errs, fmt.Errorf("sweep %s: %w", t.Name(), err))
			continue
		}
		res.Removed[t.Name()] = n
	}

	for tier, n := range res.Removed {
		if n > 0 {
			m.recorder.RecordCacheEviction(string(tier), n)
		}
	}
	m.recorder.SetCacheResidentBytes(m.memory.Resident())

	m.logger.Debug("cache sweep finished", zap.Int("removed", res.Total()))
	return res, errors.Join(errs...)
}

// Start 启动后台清理循环，重复调用无效
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	m.wg.Add(1)
	go m.sweepLoop(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			res, err := m.EvictExpired(ctx)
			if err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Warn("periodic cache sweep incomplete", zap.Error(err))
			}
			if res.Total() > 0 {
				m.logger.Info("expired cache entries removed", zap.Int("removed", res.Total()))
			}
		}
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// Stats 汇总各层统计
func (m *Manager) Stats(ctx context.Context) Stats {
	st := Stats{
		EntryCounts:         make(map[TierName]int),
		TierBytes:           make(map[TierName]int64),
		Hits:                make(map[TierName]int64),
		MemoryResidentBytes: m.memory.Resident(),
		MemoryBudgetBytes:   m.memory.Budget(),
		Misses:              m.misses.Load(),
		Evictions:           m.evictions.Load(),
	}
	for name, c := range m.hits {
		st.Hits[name] = c.Load()
	}

	tiers := append([]Tier{m.memory}, m.lowerTiers()...)
	for _, t := range tiers {
		ts, err := t.Stats(ctx)
		if err != nil {
			m.logger.Debug("cache tier stats unavailable", zap.String("tier", string(t.Name())), zap.Error(err))
			continue
		}
		st.EntryCounts[t.Name()] = ts.Entries
		st.TierBytes[t.Name()] = ts.Bytes
		st.TotalBytes += ts.Bytes
	}
	return st
}

// HitCounts 各层命中次数快照
func (m *Manager) HitCounts() map[TierName]int64 {
	out := make(map[TierName]int64, len(m.hits))
	for name, c := range m.hits {
		out[name] = c.Load()
	}
	return out
}

// =============================================================================
// 🔚 关闭
// =============================================================================

// Close 停止后台清理并关闭各层
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	for _, t := range m.lowerTiers() {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.Name(), err))
		}
	}
	m.codec.Close()
	m.logger.Info("cache manager closed")
	return errors.Join(errs...)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) lowerTiers() []Tier {
	tiers := make([]Tier, 0, 2)
	if m.disk != nil {
		tiers = append(tiers, m.disk)
	}
	if m.durable != nil {
		tiers = append(tiers, m.durable)
	}
	return tiers
}

func (m *Manager) recordHit(tier TierName) {
	m.hits[tier].Add(1)
	m.recorder.RecordCacheHit(string(tier))
}
