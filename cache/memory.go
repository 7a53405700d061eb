package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================
// 内存层：按字节预算淘汰的 LRU（双向链表，O(1) 操作）
// ============================================================

// MemoryTier 内存缓存层。常驻字节数之和永不超过 budget。
type MemoryTier struct {
	mu        sync.Mutex
	budget    int64
	maxTTL    time.Duration
	size      int64
	evictions int64
	items     map[string]*memNode
	head      *memNode // 最近访问
	tail      *memNode // 最久未访问
	now       func() time.Time
}

type memNode struct {
	key        string
	entry      *Entry
	expiresAt  time.Time
	lastAccess time.Time
	prev       *memNode
	next       *memNode
}

// NewMemoryTier 创建内存层。maxTTL 为内存层驻留上限，<=0 表示只受条目 TTL 约束。
func NewMemoryTier(budget int64, maxTTL time.Duration) *MemoryTier {
	return &MemoryTier{
		budget: budget,
		maxTTL: maxTTL,
		items:  make(map[string]*memNode),
		now:    time.Now,
	}
}

func (c *MemoryTier) Name() TierName { return TierMemory }

// Lookup 查找条目，过期条目会被惰性删除
func (c *MemoryTier) Lookup(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}

	now := c.now()
	if !now.Before(node.expiresAt) {
		c.removeLocked(node)
		return nil, false
	}

	node.lastAccess = now
	c.moveToHead(node)
	return node.entry, true
}

// Admit 尝试放入条目。超过整个预算的条目直接跳过并返回 false；
// 否则从尾部淘汰最久未访问的条目直到放得下。返回被淘汰的数量。
func (c *MemoryTier) Admit(entry *Entry) (bool, int) {
	if entry.SizeBytes > c.budget {
		return false, 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[entry.Key]; ok {
		c.removeLocked(node)
	}

	evicted := 0
	for c.size+entry.SizeBytes > c.budget && c.tail != nil {
		c.removeLocked(c.tail)
		evicted++
	}
	c.evictions += int64(evicted)

	now := c.now()
	expiresAt := entry.ExpiresAt()
	if c.maxTTL > 0 && now.Add(c.maxTTL).Before(expiresAt) {
		expiresAt = now.Add(c.maxTTL)
	}

	node := &memNode{
		key:        entry.Key,
		entry:      entry,
		expiresAt:  expiresAt,
		lastAccess: now,
	}
	c.items[entry.Key] = node
	c.size += entry.SizeBytes
	c.addToHead(node)

	return true, evicted
}

// Get 实现 Tier 接口
func (c *MemoryTier) Get(_ context.Context, key string) (*Entry, error) {
	if e, ok := c.Lookup(key); ok {
		return e, nil
	}
	return nil, ErrCacheMiss
}

// Put 实现 Tier 接口
func (c *MemoryTier) Put(_ context.Context, entry *Entry) error {
	if ok, _ := c.Admit(entry); !ok {
		return ErrEntryTooLarge
	}
	return nil
}

func (c *MemoryTier) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.removeLocked(node)
	}
	return nil
}

// EvictExpired 清理所有已过期条目
func (c *MemoryTier) EvictExpired(_ context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for node := c.head; node != nil; {
		next := node.next
		if !now.Before(node.expiresAt) {
			c.removeLocked(node)
			removed++
		}
		node = next
	}
	return removed, nil
}

func (c *MemoryTier) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memNode)
	c.head = nil
	c.tail = nil
	c.size = 0
	return nil
}

func (c *MemoryTier) Stats(_ context.Context) (TierStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TierStats{Entries: len(c.items), Bytes: c.size}, nil
}

func (c *MemoryTier) Close() error { return nil }

// Resident 当前常驻字节数
func (c *MemoryTier) Resident() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Budget 字节预算
func (c *MemoryTier) Budget() int64 { return c.budget }

// Evictions 累计 LRU 淘汰次数
func (c *MemoryTier) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *MemoryTier) removeLocked(node *memNode) {
	c.unlink(node)
	delete(c.items, node.key)
	c.size -= node.entry.SizeBytes
}

// addToHead 添加节点到头部 O(1)
func (c *MemoryTier) addToHead(node *memNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// unlink 从链表中摘除节点 O(1)
func (c *MemoryTier) unlink(node *memNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

// moveToHead 移动节点到头部 O(1)
func (c *MemoryTier) moveToHead(node *memNode) {
	if node == c.head {
		return
	}
	c.unlink(node)
	c.addToHead(node)
}
