// MockTier 缓存层的测试模拟实现。
//
// 以内存 map 保存条目，支持按操作注入错误、延迟与第 N 次调用后失败。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/assetflow/cache"
)

// --- MockTier 结构 ---

// MockTier 是 cache.Tier 的模拟实现
type MockTier struct {
	mu sync.Mutex

	name    cache.TierName
	entries map[string]*cache.Entry

	// 错误注入，键为操作名：get、put、delete、evict、clear、stats
	errs      map[string]error
	delay     time.Duration
	failAfter int
	failErr   error

	calls  map[string]int
	total  int
	closed bool
}

// NewMockTier 创建模拟缓存层
func NewMockTier(name cache.TierName) *MockTier {
	return &MockTier{
		name:    name,
		entries: make(map[string]*cache.Entry),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// --- Builder 方法 ---

// WithError 让指定操作返回 err
func (m *MockTier) WithError(op string, err error) *MockTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
	return m
}

// WithDelay 每次调用前等待 d，ctx 结束时提前返回
func (m *MockTier) WithDelay(d time.Duration) *MockTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// FailAfter 前 n 次调用正常，之后全部返回 err
func (m *MockTier) FailAfter(n int, err error) *MockTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
	return m
}

// Seed 直接写入条目，不计入调用次数
func (m *MockTier) Seed(e *cache.Entry) *MockTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return m
}

// --- 调用记录 ---

// Calls 返回指定操作的调用次数
func (m *MockTier) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Has 条目是否存在
func (m *MockTier) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Closed 是否已关闭
func (m *MockTier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTier) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	m.total++
	delay := m.delay
	err := m.errs[op]
	if err == nil && m.failErr != nil && m.total > m.failAfter {
		err = m.failErr
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// --- cache.Tier 实现 ---

func (m *MockTier) Name() cache.TierName { return m.name }

func (m *MockTier) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if err := m.enter(ctx, "get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return e, nil
}

func (m *MockTier) Put(ctx context.Context, e *cache.Entry) error {
	if err := m.enter(ctx, "put"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *MockTier) Delete(ctx context.Context, key string) error {
	if err := m.enter(ctx, "delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MockTier) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	if err := m.enter(ctx, "evict"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MockTier) Clear(ctx context.Context) error {
	if err := m.enter(ctx, "clear"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*cache.Entry)
	return nil
}

func (m *MockTier) Stats(ctx context.Context) (cache.TierStats, error) {
	if err := m.enter(ctx, "stats"); err != nil {
		return cache.TierStats{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := cache.TierStats{Entries: len(m.entries)}
	for _, e := range m.entries {
		st.Bytes += e.SizeBytes
	}
	return st, nil
}

func (m *MockTier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
