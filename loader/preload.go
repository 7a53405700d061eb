package loader

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// ⏳ 预加载队列
// =============================================================================

type preloadItem struct {
	url      string
	priority int
	seq      uint64
	queuedAt time.Time
	index    int
}

// preloadHeap 优先级高者在前，同优先级先入先出
type preloadHeap []*preloadItem

func (h preloadHeap) Len() int { return len(h) }

func (h preloadHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h preloadHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *preloadHeap) Push(x any) {
	item := x.(*preloadItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *preloadHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// preloadQueue 有界优先级队列，同一 URL 只保留一项
type preloadQueue struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	items preloadHeap
	byURL map[string]*preloadItem
}

func newPreloadQueue(limit int) *preloadQueue {
	return &preloadQueue{
		limit: limit,
		byURL: make(map[string]*preloadItem),
	}
}

// push 入队。已存在时取较高优先级；队列满时挤掉优先级更低的条目，
// 返回被挤掉的 URL。
func (q *preloadQueue) push(url string, priority int) (displaced string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.byURL[url]; ok {
		if priority > item.priority {
			item.priority = priority
			heap.Fix(&q.items, item.index)
		}
		return "", nil
	}

	if len(q.items) >= q.limit {
		victim := q.lowestLocked()
		if victim == nil || victim.priority >= priority {
			return "", ErrPreloadQueueFull
		}
		heap.Remove(&q.items, victim.index)
		delete(q.byURL, victim.url)
		displaced = victim.url
	}

	q.seq++
	item := &preloadItem{url: url, priority: priority, seq: q.seq, queuedAt: time.Now()}
	heap.Push(&q.items, item)
	q.byURL[url] = item
	return displaced, nil
}

// lowestLocked 优先级最低、最晚入队的条目
func (q *preloadQueue) lowestLocked() *preloadItem {
	var victim *preloadItem
	for _, it := range q.items {
		if victim == nil || it.priority < victim.priority ||
			(it.priority == victim.priority && it.seq > victim.seq) {
			victim = it
		}
	}
	return victim
}

func (q *preloadQueue) pop() (*preloadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*preloadItem)
	delete(q.byURL, item.url)
	return item, true
}

func (q *preloadQueue) remove(url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byURL[url]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byURL, url)
	return true
}

func (q *preloadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// =============================================================================
// 🔁 预加载调度
// =============================================================================

// Preload 将 URL 加入预加载队列，priority 越大越先处理
func (l *Loader) Preload(url string, priority int) error {
	if l.closed.Load() {
		return ErrClosed
	}
	displaced, err := l.queue.push(url, priority)
	if err != nil {
		l.logger.Debug("preload rejected", zap.String("url", url), zap.Int("priority", priority), zap.Error(err))
		return err
	}
	if displaced != "" {
		l.logger.Debug("preload displaced lower priority entry",
			zap.String("url", url),
			zap.String("displaced", displaced),
		)
	}
	return nil
}

// PreloadQueueLen 队列中等待的 URL 数
func (l *Loader) PreloadQueueLen() int {
	return l.queue.len()
}

// nextPreload 取出下一个应处理的 URL
func (l *Loader) nextPreload() (string, bool) {
	item, ok := l.queue.pop()
	if !ok {
		return "", false
	}
	return item.url, true
}

// Run 按节拍处理预加载队列，直到 ctx 结束或加载器关闭
func (l *Loader) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(l.cfg.PreloadInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if l.closed.Load() {
			return ErrClosed
		}
		l.preloadTick(ctx)
	}
}

// preloadTick 并发预算允许时取出一个最高优先级的 URL 交给工作池
func (l *Loader) preloadTick(ctx context.Context) bool {
	if l.InFlight() >= l.cfg.MaxConcurrent {
		return false
	}
	url, ok := l.nextPreload()
	if !ok {
		return false
	}

	err := l.workers.Submit(ctx, func(ctx context.Context) error {
		_, err := l.Load(ctx, url, Options{Priority: PriorityLow, preload: true})
		if err != nil {
			l.logger.Warn("preload failed", zap.String("url", url), zap.Error(err))
		}
		return err
	})
	if err != nil {
		l.logger.Warn("preload dispatch failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
