package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/assetflow/cache"
	"github.com/BaSui01/assetflow/internal/pool"
)

// =============================================================================
// 📦 渐进式加载器
// =============================================================================

// Config 加载器配置
type Config struct {
	// 流式分块大小
	ChunkSize int64 `yaml:"chunk_size" json:"chunk_size"`
	// 同时在途的网络请求上限（分块、探测与预加载共享）
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// 策略阈值（字节/秒）
	StreamingBelow   float64 `yaml:"streaming_below" json:"streaming_below"`
	ProgressiveBelow float64 `yaml:"progressive_below" json:"progressive_below"`
	// EMA 平滑系数
	Smoothing float64 `yaml:"smoothing" json:"smoothing"`
	// 尚无样本时的网速估计
	InitialSpeed float64 `yaml:"initial_speed" json:"initial_speed"`
	// Progressive 首段大小上限
	FirstSliceBytes int64 `yaml:"first_slice_bytes" json:"first_slice_bytes"`
	// 预加载队列容量与节拍
	PreloadQueueSize int           `yaml:"preload_queue_size" json:"preload_queue_size"`
	PreloadInterval  time.Duration `yaml:"preload_interval" json:"preload_interval"`
	// 单次 HTTP 请求超时（含读取响应体），超时视为传输错误，不重试；为 0 时取默认值，负值不限时
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// 事件通道容量
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ChunkSize:        DefaultChunkSize,
		MaxConcurrent:    3,
		StreamingBelow:   DefaultStreamingBelow,
		ProgressiveBelow: DefaultProgressiveBelow,
		Smoothing:        DefaultSmoothing,
		InitialSpeed:     DefaultInitialSpeed,
		FirstSliceBytes:  1 << 20,
		PreloadQueueSize: 32,
		PreloadInterval:  time.Second,
		RequestTimeout:   60 * time.Second,
		EventBuffer:      DefaultEventBuffer,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.StreamingBelow <= 0 {
		c.StreamingBelow = def.StreamingBelow
	}
	if c.ProgressiveBelow <= 0 {
		c.ProgressiveBelow = def.ProgressiveBelow
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		c.Smoothing = def.Smoothing
	}
	if c.InitialSpeed <= 0 {
		c.InitialSpeed = def.InitialSpeed
	}
	if c.FirstSliceBytes <= 0 || c.FirstSliceBytes > def.FirstSliceBytes {
		c.FirstSliceBytes = def.FirstSliceBytes
	}
	if c.PreloadQueueSize <= 0 {
		c.PreloadQueueSize = def.PreloadQueueSize
	}
	if c.PreloadInterval <= 0 {
		c.PreloadInterval = def.PreloadInterval
	}
	switch {
	case c.RequestTimeout == 0:
		c.RequestTimeout = def.RequestTimeout
	case c.RequestTimeout < 0:
		c.RequestTimeout = 0
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// Cache 加载器使用的缓存，cache.Manager 实现了该接口
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, meta cache.Metadata, ttl time.Duration) error
}

// Recorder 指标上报，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordLoad(strategy, status string, duration time.Duration, bytes int64)
	SetNetworkTelemetry(speedBytesPerSec, latencyMs float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordLoad(string, string, time.Duration, int64) {}
func (nopRecorder) SetNetworkTelemetry(float64, float64)            {}

// TransferRecord 一次请求（包括缓存命中）的摘要
type TransferRecord struct {
	URL       string
	Strategy  Strategy
	Bytes     int64
	Duration  time.Duration
	Latency   time.Duration
	FromCache bool
	Err       error
	At        time.Time
}

// TransferObserver 接收每次请求的摘要，例如 quality.PerformanceMonitor
type TransferObserver interface {
	ObserveTransfer(rec TransferRecord)
}

// Option 加载器选项
type Option func(*Loader)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.fetch.client = c
		}
	}
}

// WithCache 设置缓存
func WithCache(c Cache) Option {
	return func(l *Loader) { l.cache = c }
}

// WithRecorder 设置指标上报
func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithObserver 添加传输观察者
func WithObserver(o TransferObserver) Option {
	return func(l *Loader) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithTracerProvider 设置 OpenTelemetry TracerProvider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		if tp != nil {
			l.tracer = tp.Tracer("github.com/BaSui01/assetflow/loader")
		}
	}
}

// Loader 按网络状况选择策略的加载器
type Loader struct {
	cfg        Config
	thresholds Thresholds
	fetch      *fetcher
	cache      Cache
	sem        *semaphore.Weighted
	telemetry  *estimator
	recorder   Recorder
	tracer     trace.Tracer
	logger     *zap.Logger

	obsMu     sync.RWMutex
	observers []TransferObserver

	tasksMu sync.Mutex
	tasks   map[string]map[*Task]struct{}
	active  atomic.Int64
	wg      sync.WaitGroup

	queue   *preloadQueue
	workers *pool.GoroutinePool
	closed  atomic.Bool
}

// New 创建加载器
func New(cfg Config, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	l := &Loader{
		cfg: cfg,
		thresholds: Thresholds{
			StreamingBelow:   cfg.StreamingBelow,
			ProgressiveBelow: cfg.ProgressiveBelow,
		},
		fetch: &fetcher{
			client:  http.DefaultClient,
			timeout: cfg.RequestTimeout,
		},
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		telemetry: newEstimator(cfg.Smoothing, cfg.InitialSpeed),
		recorder:  nopRecorder{},
		tracer:    otel.Tracer("github.com/BaSui01/assetflow/loader"),
		logger:    logger.With(zap.String("component", "loader")),
		tasks:     make(map[string]map[*Task]struct{}),
		queue:     newPreloadQueue(cfg.PreloadQueueSize),
		workers: pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			MaxWorkers:  cfg.MaxConcurrent,
			QueueSize:   cfg.MaxConcurrent,
			IdleTimeout: 30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger.Info("loader initialized",
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int64("chunk_size", cfg.ChunkSize),
		zap.Duration("request_timeout", cfg.RequestTimeout),
	)
	return l
}

// AddObserver 添加传输观察者
func (l *Loader) AddObserver(o TransferObserver) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, o)
}

// Telemetry 当前网络遥测快照
func (l *Loader) Telemetry() NetworkTelemetry {
	return l.telemetry.snapshot()
}

// Classify 按当前遥测为给定选项选择策略
func (l *Loader) Classify(opts Options) Strategy {
	return l.thresholds.Classify(l.telemetry.speed(), opts)
}

// InFlight 正在进行的加载数
func (l *Loader) InFlight() int {
	return int(l.active.Load())
}

// Load 加载并等待结果
func (l *Loader) Load(ctx context.Context, url string, opts Options) (*Result, error) {
	return l.Start(ctx, url, opts).Wait()
}

// Start 启动一次加载并立即返回任务
func (l *Loader) Start(ctx context.Context, url string, opts Options) *Task {
	task := newTask(uuid.NewString(), url, opts, l.cfg.EventBuffer)

	if l.closed.Load() {
		task.finish(nil, ErrClosed)
		return task
	}

	l.track(task)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		res, err := l.run(ctx, task)
		l.untrack(task)
		task.finish(res, err)
	}()
	return task
}

// CancelLoad 从预加载队列移除 URL，并将其在途任务标记为取消。
// 已发出的请求不会被中断，但其结果会被丢弃且不写入缓存。
func (l *Loader) CancelLoad(url string) int {
	removed := l.queue.remove(url)

	l.tasksMu.Lock()
	n := 0
	for t := range l.tasks[url] {
		t.cancel()
		n++
	}
	l.tasksMu.Unlock()

	if removed || n > 0 {
		l.logger.Debug("load cancelled",
			zap.String("url", url),
			zap.Bool("dequeued", removed),
			zap.Int("in_flight", n),
		)
	}
	return n
}

// Close 停止预加载并等待在途任务结束
func (l *Loader) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.workers.Close()
	l.wg.Wait()
	l.logger.Info("loader closed")
	return nil
}

func (l *Loader) track(t *Task) {
	l.active.Add(1)
	l.tasksMu.Lock()
	defer l.tasksMu.Unlock()
	set, ok := l.tasks[t.URL]
	if !ok {
		set = make(map[*Task]struct{})
		l.tasks[t.URL] = set
	}
	set[t] = struct{}{}
}

func (l *Loader) untrack(t *Task) {
	l.active.Add(-1)
	l.tasksMu.Lock()
	defer l.tasksMu.Unlock()
	delete(l.tasks[t.URL], t)
	if len(l.tasks[t.URL]) == 0 {
		delete(l.tasks, t.URL)
	}
}

// =============================================================================
// 🎯 加载流程
// =============================================================================

func (l *Loader) run(ctx context.Context, task *Task) (*Result, error) {
	start := time.Now()

	ctx, span := l.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.String("asset.url", task.URL),
		attribute.String("load.id", task.ID),
		attribute.String("load.priority", task.opts.Priority.String()),
		attribute.Bool("load.preload", task.opts.preload),
	))
	defer span.End()

	// 命中缓存时跳过整个策略流程
	if l.cache != nil {
		if data, err := l.cache.Get(ctx, task.URL); err == nil {
			res := &Result{
				ID:        task.ID,
				URL:       task.URL,
				Data:      data,
				FromCache: true,
				Bytes:     int64(len(data)),
				Duration:  time.Since(start),
			}
			span.SetAttributes(attribute.Bool("load.from_cache", true))
			l.report(TransferRecord{URL: task.URL, Bytes: res.Bytes, Duration: res.Duration, FromCache: true, At: time.Now()})
			l.recorder.RecordLoad("cache", "hit", res.Duration, res.Bytes)
			return res, nil
		}
	}

	strategy := l.Classify(task.opts)
	task.setStrategy(strategy)
	span.SetAttributes(attribute.String("load.strategy", strategy.String()))

	var (
		tr  *transfer
		err error
	)
	switch strategy {
	case StrategyStreaming:
		tr, err = l.loadStreaming(ctx, task)
	case StrategyProgressive:
		tr, err = l.loadProgressive(ctx, task)
	default:
		tr, err = l.loadStandard(ctx, task)
	}
	// 探测失败时可能已回退
	strategy = task.Strategy()

	if err == nil && task.Cancelled() {
		err = ErrCancelled
	}
	if err != nil {
		status := "error"
		if errors.Is(err, ErrCancelled) {
			status = "cancelled"
		} else {
			l.logger.Error("asset load failed",
				zap.String("url", task.URL),
				zap.String("strategy", strategy.String()),
				zap.Error(err),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.report(TransferRecord{URL: task.URL, Strategy: strategy, Duration: time.Since(start), Err: err, At: time.Now()})
		l.recorder.RecordLoad(strategy.String(), status, time.Since(start), 0)
		return nil, err
	}

	now := time.Now()
	snap := l.telemetry.observe(int64(len(tr.data)), tr.elapsed, tr.latency, now)
	l.recorder.SetNetworkTelemetry(snap.SpeedBytesPerSec, snap.LatencyMs)

	// 写回缓存，失败不影响结果
	if l.cache != nil {
		meta := cache.Metadata{
			Kind:        kindFor(task.URL, task.opts.Kind),
			ContentType: tr.contentType,
			ETag:        tr.etag,
			SourceURL:   task.URL,
		}
		if err := l.cache.Put(ctx, task.URL, tr.data, meta, task.opts.TTL); err != nil {
			l.logger.Warn("cache write-back failed", zap.String("url", task.URL), zap.Error(err))
		}
	}

	res := &Result{
		ID:       task.ID,
		URL:      task.URL,
		Data:     tr.data,
		Strategy: strategy,
		Bytes:    int64(len(tr.data)),
		Chunks:   tr.chunks,
		Duration: time.Since(start),
	}
	span.SetAttributes(attribute.Int64("load.bytes", res.Bytes))
	l.report(TransferRecord{
		URL:      task.URL,
		Strategy: strategy,
		Bytes:    res.Bytes,
		Duration: res.Duration,
		Latency:  tr.latency,
		At:       now,
	})
	l.recorder.RecordLoad(strategy.String(), "ok", res.Duration, res.Bytes)

	l.logger.Debug("asset loaded",
		zap.String("url", task.URL),
		zap.String("strategy", strategy.String()),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// transfer 一次网络加载的原始结果
type transfer struct {
	data        []byte
	latency     time.Duration
	elapsed     time.Duration
	chunks      int
	contentType string
	etag        string
}

func (tr *transfer) fromHeader(h http.Header) {
	if h == nil {
		return
	}
	tr.contentType = h.Get("Content-Type")
	tr.etag = h.Get("ETag")
}

// withSlot 在全局并发上限内执行 fn
func (l *Loader) withSlot(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}

// loadStandard 单次 GET，按 Content-Length 发出进度
func (l *Loader) loadStandard(ctx context.Context, task *Task) (*transfer, error) {
	start := time.Now()
	var resp *response
	err := l.withSlot(ctx, func() error {
		var err error
		resp, err = l.fetch.fetchAll(ctx, task.URL, task.emitProgress)
		return err
	})
	if err != nil {
		return nil, err
	}

	tr := &transfer{data: resp.Data, latency: resp.Latency, elapsed: time.Since(start)}
	tr.fromHeader(resp.Header)
	return tr, nil
}

// loadProgressive 先取首段发出预览，再一次取回剩余部分
func (l *Loader) loadProgressive(ctx context.Context, task *Task) (*transfer, error) {
	start := time.Now()
	first := l.cfg.FirstSliceBytes

	var head *response
	err := l.withSlot(ctx, func() error {
		var err error
		head, err = l.fetch.fetchRange(ctx, task.URL, 0, first, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	tr := &transfer{latency: head.Latency}
	tr.fromHeader(head.Header)

	// 服务端忽略 Range 返回了完整内容
	if head.StatusCode == http.StatusOK {
		task.emitFirstChunk(head.Data, int64(len(head.Data)))
		tr.data = head.Data
		tr.elapsed = time.Since(start)
		return tr, nil
	}

	_, _, total, _ := parseContentRange(head.Header.Get("Content-Range"))
	task.emitFirstChunk(head.Data, total)
	task.emitProgress(int64(len(head.Data)), total)

	if int64(len(head.Data)) < first || (total >= 0 && int64(len(head.Data)) >= total) {
		tr.data = head.Data
		tr.elapsed = time.Since(start)
		return tr, nil
	}
	if task.Cancelled() {
		return nil, ErrCancelled
	}

	restLen := int64(0)
	if total > 0 {
		restLen = total - first
	}

	var rest *response
	err = l.withSlot(ctx, func() error {
		var err error
		rest, err = l.fetch.fetchRange(ctx, task.URL, first, restLen, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(head.Data)+len(rest.Data))
	data = append(data, head.Data...)
	data = append(data, rest.Data...)
	if total >= 0 && int64(len(data)) != total {
		return nil, fmt.Errorf("%w: assembled %d bytes, declared %d", ErrAssembly, len(data), total)
	}
	task.emitProgress(int64(len(data)), total)

	tr.data = data
	tr.chunks = 2
	tr.elapsed = time.Since(start)
	return tr, nil
}

// loadStreaming 探测大小后按优先级并行拉取分块
func (l *Loader) loadStreaming(ctx context.Context, task *Task) (*transfer, error) {
	start := time.Now()

	var probe probeResult
	err := l.withSlot(ctx, func() error {
		var err error
		probe, err = l.fetch.probe(ctx, task.URL)
		return err
	})
	if err != nil {
		return nil, err
	}

	if probe.Size <= 0 || !probe.AcceptRanges {
		l.logger.Debug("size probe returned no length or no range support, falling back to standard",
			zap.String("url", task.URL),
			zap.Int64("size", probe.Size),
			zap.Bool("accept_ranges", probe.AcceptRanges),
		)
		task.setStrategy(StrategyStandard)
		tr, err := l.loadStandard(ctx, task)
		if tr != nil && tr.latency < probe.Latency {
			tr.latency = probe.Latency
		}
		return tr, err
	}

	chunks := PlanChunks(probe.Size, l.cfg.ChunkSize)
	var loaded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	var dispatchErr error
	for _, idx := range dispatchOrder(chunks) {
		if task.Cancelled() {
			dispatchErr = ErrCancelled
			break
		}
		// 按优先级顺序获取并发槽位
		if err := l.sem.Acquire(gctx, 1); err != nil {
			dispatchErr = err
			break
		}
		c := &chunks[idx]
		g.Go(func() error {
			defer l.sem.Release(1)
			resp, err := l.fetch.fetchRange(gctx, task.URL, c.Offset, c.Length, false)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", c.ID, err)
			}
			c.Data = resp.Data
			c.Loaded = true
			if c.ID == 0 {
				task.emitFirstChunk(c.Data, probe.Size)
			}
			task.emitProgress(loaded.Add(c.Length), probe.Size)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	data, err := Assemble(chunks, probe.Size)
	if err != nil {
		return nil, err
	}
	return &transfer{
		data:    data,
		latency: probe.Latency,
		elapsed: time.Since(start),
		chunks:  len(chunks),
	}, nil
}

func (l *Loader) report(rec TransferRecord) {
	l.obsMu.RLock()
	defer l.obsMu.RUnlock()
	for _, o := range l.observers {
		o.ObserveTransfer(rec)
	}
}

// kindFor 按扩展名推断资源类型
func kindFor(url, explicit string) cache.Kind {
	if explicit != "" {
		return cache.Kind(explicit)
	}
	p := url
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".glb", ".gltf", ".fbx", ".obj", ".usdz", ".drc", ".stl", ".ply":
		return cache.KindModel
	case ".png", ".jpg", ".jpeg", ".webp", ".ktx2", ".basis", ".hdr", ".exr":
		return cache.KindTexture
	default:
		return cache.KindOther
	}
}
