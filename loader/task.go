package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventType 加载事件类型
type EventType int

const (
	EventFirstChunk EventType = iota
	EventProgress
	EventComplete
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventFirstChunk:
		return "first_chunk"
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event 加载过程中的事件。Data 仅在 EventFirstChunk 时有效，
// Result 仅在 EventComplete 时有效，Err 仅在 EventError 时有效。
type Event struct {
	Type   EventType
	Data   []byte
	Loaded int64
	Total  int64
	Result *Result
	Err    error
}

// Result 完成的加载结果
type Result struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Data      []byte        `json:"-"`
	Strategy  Strategy      `json:"strategy"`
	FromCache bool          `json:"from_cache"`
	Bytes     int64         `json:"bytes"`
	Chunks    int           `json:"chunks,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Options 单次加载选项
type Options struct {
	Priority Priority
	// Streaming 调用方要求分块流式加载
	Streaming bool
	// Kind 缓存写回时的资源类型，为空时按扩展名推断
	Kind string
	// TTL 缓存写回的有效期，0 表示按类型默认
	TTL time.Duration

	preload bool
}

// DefaultEventBuffer 事件通道容量
const DefaultEventBuffer = 64

// Task 一次进行中的加载
type Task struct {
	ID  string
	URL string

	opts     Options
	strategy atomic.Int32

	mu       sync.Mutex
	events   chan Event
	finished bool
	first    bool

	cancelled atomic.Bool
	done      chan struct{}
	result    *Result
	err       error
}

func newTask(id, url string, opts Options, buffer int) *Task {
	// 预留首块与终止事件的位置
	if buffer < 4 {
		buffer = 4
	}
	return &Task{
		ID:     id,
		URL:    url,
		opts:   opts,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events 事件通道，终止事件发出后关闭。未消费的进度事件会被丢弃，
// 首块与终止事件不会丢失。
func (t *Task) Events() <-chan Event { return t.events }

// Done 加载结束时关闭
func (t *Task) Done() <-chan struct{} { return t.done }

// Strategy 实际使用的策略（命中缓存时为 StrategyStandard）
func (t *Task) Strategy() Strategy { return Strategy(t.strategy.Load()) }

// Cancelled 是否已被取消
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Wait 等待加载结束
func (t *Task) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}

// WaitContext 等待加载结束或 ctx 结束
func (t *Task) WaitContext(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) cancel() { t.cancelled.Store(true) }

func (t *Task) setStrategy(s Strategy) { t.strategy.Store(int32(s)) }

// emitProgress 非阻塞；通道接近满时丢弃
func (t *Task) emitProgress(loaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.cancelled.Load() {
		return
	}
	if len(t.events) >= cap(t.events)-2 {
		return
	}
	t.events <- Event{Type: EventProgress, Loaded: loaded, Total: total}
}

// emitFirstChunk 每个任务最多一次
func (t *Task) emitFirstChunk(data []byte, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.first || t.cancelled.Load() {
		return
	}
	t.first = true
	t.events <- Event{Type: EventFirstChunk, Data: data, Loaded: int64(len(data)), Total: total}
}

// finish 发出终止事件并关闭通道，只生效一次
func (t *Task) finish(res *Result, err error) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.result = res
	t.err = err
	if err != nil {
		t.events <- Event{Type: EventError, Err: err}
	} else {
		t.events <- Event{Type: EventComplete, Result: res, Loaded: res.Bytes, Total: res.Bytes}
	}
	close(t.events)
	t.mu.Unlock()

	close(t.done)
}
