package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

// brokenTier 所有操作都失败的缓存层
type brokenTier struct {
	name TierName
}

var errTierDown = errors.New("tier down")

func (b brokenTier) Name() TierName { return b.name }
func (brokenTier) Get(context.Context, string) (*Entry, error) { return nil, errTierDown }
func (brokenTier) Put(context.Context, *Entry) error { return errTierDown }
func (brokenTier) Delete(context.Context, string) error { return errTierDown }
func (brokenTier) EvictExpired(context.Context, time.Time) (int, error) { return 0, errTierDown }
func (brokenTier) Clear(context.Context) error { return errTierDown }
func (brokenTier) Stats(context.Context) (TierStats, error) { return TierStats{}, errTierDown }
func (brokenTier) Close() error { return nil }

type countingRecorder struct {
	mu        sync.Mutex
	hits      map[string]int
	misses    map[string]int
	evictions map[string]int
	resident  int64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		hits:      map[string]int{},
		misses:    map[string]int{},
		evictions: map[string]int{},
	}
}

func (r *countingRecorder) RecordCacheHit(tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[tier]++
}

func (r *countingRecorder) RecordCacheMiss(tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[tier]++
}

func (r *countingRecorder) RecordCacheEviction(tier string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions[tier] += n
}

func (r *countingRecorder) SetCacheResidentBytes(b int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resident = b
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_PutGetFromMemory(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithDurable(setupDurable(t)))
	ctx := context.Background()

	data := []byte("texture-bytes")
	require.NoError(t, m.Put(ctx, "https://cdn.example.com/t.ktx2", data, Metadata{Kind: KindTexture}, 0))

	// 调用方修改原切片不影响缓存
	data[0] = 'X'

	e, tier, err := m.GetEntry(ctx, "https://cdn.example.com/t.ktx2")
	require.NoError(t, err)
	assert.Equal(t, TierMemory, tier)
	assert.Equal(t, []byte("texture-bytes"), e.Payload)
	assert.Equal(t, 30*24*time.Hour, e.TTL, "texture default ttl")
	assert.Equal(t, "v1", e.Version)
}

func TestManager_ReadsReturnIndependentCopies(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithDurable(setupDurable(t)))
	ctx := context.Background()
	key := "https://cdn.example.com/robot.glb"
	require.NoError(t, m.Put(ctx, key, []byte("mesh-bytes"), Metadata{Kind: KindModel}, 0))

	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	got[0] = 'X'

	e, _, err := m.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("mesh-bytes"), e.Payload)
	e.Payload[1] = 'Y'

	again, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("mesh-bytes"), again)
}

func TestManager_DefaultTTLPerKind(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 7*24*time.Hour, cfg.TTLFor(KindModel))
	assert.Equal(t, 30*24*time.Hour, cfg.TTLFor(KindTexture))
	assert.Equal(t, 24*time.Hour, cfg.TTLFor(KindOther))
}

func TestManager_MissEverywhere(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithDisk(setupLevelDB(t)), WithDurable(setupDurable(t)))

	_, err := m.Get(context.Background(), "https://cdn.example.com/missing.glb")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), m.Stats(context.Background()).Misses)
}

// 内存预算 50MB：放入 40MB 的 a 后再放入 20MB 的 b，a 被挤出内存但仍可从持久层读取
func TestManager_MemoryPressureFallsBackToDurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryBudgetBytes = 50 << 20
	cfg.Compression = false
	m := newTestManager(t, cfg, WithDurable(setupDurable(t)))
	ctx := context.Background()

	a := bytes.Repeat([]byte{'a'}, 40<<20)
	b := bytes.Repeat([]byte{'b'}, 20<<20)
	require.NoError(t, m.Put(ctx, "a", a, Metadata{Kind: KindModel}, 0))
	require.NoError(t, m.Put(ctx, "b", b, Metadata{Kind: KindModel}, 0))

	assert.LessOrEqual(t, m.Memory().Resident(), cfg.MemoryBudgetBytes)
	_, inMemory := m.Memory().Lookup("a")
	assert.False(t, inMemory)

	e, tier, err := m.GetEntry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, TierDurable, tier)
	assert.Equal(t, len(a), len(e.Payload))
	assert.LessOrEqual(t, m.Memory().Resident(), cfg.MemoryBudgetBytes)
}

func TestManager_OversizedEntryStillPersisted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryBudgetBytes = 1024
	m := newTestManager(t, cfg, WithDisk(setupLevelDB(t)))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "big", make([]byte, 4096), Metadata{}, time.Hour))

	_, tier, err := m.GetEntry(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, TierDisk, tier)
	assert.Zero(t, m.Memory().Resident())
}

func TestManager_PromotesDurableHitIntoDisk(t *testing.T) {
	ctx := context.Background()
	durable := setupDurable(t)
	disk := setupLevelDB(t)

	seed := newTestManager(t, DefaultConfig(), WithDurable(durable))
	require.NoError(t, seed.Put(ctx, "p", []byte("payload"), Metadata{Kind: KindModel}, 0))

	m := newTestManager(t, DefaultConfig(), WithDisk(disk), WithDurable(durable))
	_, tier, err := m.GetEntry(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, TierDurable, tier)

	_, err = disk.Get(ctx, "p")
	assert.NoError(t, err, "durable hit is written back to disk")

	_, tier, err = m.GetEntry(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, TierMemory, tier)
}

func TestManager_PromotionRespectsMemoryTTL(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.MemoryTTL = 5 * time.Minute
	disk := setupLevelDB(t)
	m := newTestManager(t, cfg, WithDisk(disk), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), Metadata{Kind: KindModel}, time.Hour))

	clock.Advance(6 * time.Minute)
	_, tier, err := m.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TierDisk, tier, "memory copy expired after MemoryTTL")

	clock.Advance(time.Minute)
	_, tier, err = m.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TierMemory, tier)
}

func TestManager_ExpiredEntryDeletedOnRead(t *testing.T) {
	clock := newFakeClock()
	disk := setupLevelDB(t)
	m := newTestManager(t, DefaultConfig(), WithDisk(disk), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), Metadata{}, time.Minute))
	clock.Advance(2 * time.Minute)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	st, err := disk.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Entries, "expired disk record removed lazily")
}

func TestManager_BrokenTiersDegradeToMiss(t *testing.T) {
	m := newTestManager(t, DefaultConfig(),
		WithDisk(brokenTier{name: TierDisk}),
		WithDurable(brokenTier{name: TierDurable}),
	)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), Metadata{}, 0), "tier failures are not surfaced")

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = m.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_CompressionRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressThreshold = 1024
	disk := setupLevelDB(t)
	m := newTestManager(t, cfg, WithDisk(disk))
	ctx := context.Background()

	payload := bytes.Repeat([]byte("vertex-data "), 10_000)
	require.NoError(t, m.Put(ctx, "c", payload, Metadata{Kind: KindModel}, 0))

	stored, err := disk.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, stored.Compressed)
	assert.Less(t, len(stored.Payload), len(payload))
	assert.Equal(t, int64(len(payload)), stored.SizeBytes)

	require.NoError(t, m.Memory().Delete(ctx, "c"))
	e, tier, err := m.GetEntry(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, TierDisk, tier)
	assert.False(t, e.Compressed)
	assert.Equal(t, payload, e.Payload)
}

func TestManager_EvictExpiredAllTiers(t *testing.T) {
	clock := newFakeClock()
	disk := setupLevelDB(t)
	durable := setupDurable(t)
	rec := newCountingRecorder()
	m := newTestManager(t, DefaultConfig(),
		WithDisk(disk), WithDurable(durable), WithClock(clock.Now), WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "short", []byte("1"), Metadata{}, time.Minute))
	require.NoError(t, m.Put(ctx, "long", []byte("2"), Metadata{}, 48*time.Hour))

	clock.Advance(2 * time.Minute)
	res, err := m.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed[TierMemory])
	assert.Equal(t, 1, res.Removed[TierDisk])
	assert.Equal(t, 1, res.Removed[TierDurable])
	assert.Equal(t, 3, res.Total())

	res, err = m.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Total())

	_, err = m.Get(ctx, "long")
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.evictions[string(TierDisk)])
}

func TestManager_ConcurrentSweepAndAccess(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithDisk(setupLevelDB(t)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, m.Put(ctx, key, []byte(key), Metadata{}, time.Hour))
			_, _ = m.Get(ctx, key)
		}(i)
		go func() {
			defer wg.Done()
			_, err := m.EvictExpired(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestManager_StatsAndRecorder(t *testing.T) {
	rec := newCountingRecorder()
	cfg := DefaultConfig()
	cfg.MemoryBudgetBytes = 100
	m := newTestManager(t, cfg, WithDurable(setupDurable(t)), WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a", make([]byte, 60), Metadata{}, 0))
	require.NoError(t, m.Put(ctx, "b", make([]byte, 60), Metadata{}, 0))
	_, _ = m.Get(ctx, "b")
	_, _ = m.Get(ctx, "a")
	_, _ = m.Get(ctx, "nope")

	st := m.Stats(ctx)
	assert.Equal(t, int64(1), st.Hits[TierMemory])
	assert.Equal(t, int64(1), st.Hits[TierDurable])
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(2), st.Evictions)
	assert.Equal(t, 2, st.EntryCounts[TierDurable])
	assert.Equal(t, 1, st.EntryCounts[TierMemory])
	assert.Equal(t, int64(100), st.MemoryBudgetBytes)
	assert.Equal(t, int64(60), st.MemoryResidentBytes)
	assert.InDelta(t, 2.0/3.0, st.HitRatio(), 1e-9)

	assert.Equal(t, 1, rec.hits["memory"])
	assert.Equal(t, 1, rec.hits["durable"])
	assert.Equal(t, 1, rec.misses["all"])
	assert.Equal(t, int64(60), rec.resident)
}

func TestManager_Warm(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "cached", []byte("x"), Metadata{}, 0))

	var fetched []string
	n, err := m.Warm(ctx, []string{"cached", "a", "fail", "b"}, func(_ context.Context, key string) ([]byte, Metadata, error) {
		fetched = append(fetched, key)
		if key == "fail" {
			return nil, Metadata{}, errors.New("origin down")
		}
		return []byte(key), Metadata{Kind: KindModel}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "fail", "b"}, fetched)

	got, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestManager_StartAndClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	m, err := NewManager(cfg, zap.NewNop(), WithDisk(setupLevelDB(t)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("v"), Metadata{}, 20*time.Millisecond))

	m.Start(ctx)
	m.Start(ctx)

	assert.Eventually(t, func() bool {
		st, err := m.disk.Stats(ctx)
		return err == nil && st.Entries == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put(ctx, "k", nil, Metadata{}, 0), ErrClosed)
}

func TestManager_ClearJoinsTierErrors(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithDisk(brokenTier{name: TierDisk}))
	require.NoError(t, m.Put(context.Background(), "k", []byte("v"), Metadata{}, 0))

	err := m.Clear(context.Background())
	assert.ErrorIs(t, err, errTierDown)
	assert.Zero(t, m.Memory().Resident())
}
