package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/assetflow/cache"
	"github.com/BaSui01/assetflow/loader"
	"github.com/BaSui01/assetflow/testutil/fixtures"
)

// writeCLIConfig 生成使用临时 leveldb 目录的配置，日志写入文件避免污染输出
func writeCLIConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`device:
  tier: desktop
cache:
  disk_backend: leveldb
  disk_path: %s
metrics:
  enabled: false
log:
  level: debug
  output_paths:
    - %s
`, filepath.Join(dir, "disk"), filepath.Join(dir, "assetflow.log"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want loader.Priority
	}{
		{"", loader.PriorityNormal},
		{"low", loader.PriorityLow},
		{"Normal", loader.PriorityNormal},
		{"high", loader.PriorityHigh},
	}
	for _, tt := range tests {
		got, err := parsePriority(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := parsePriority("urgent")
	assert.ErrorContains(t, err, "invalid priority")
}

func TestParseFetchArgs(t *testing.T) {
	opts, err := parseFetchArgs([]string{"--priority", "high", "--streaming", "--out", "a.glb", "https://cdn.example.com/a.glb"})
	require.NoError(t, err)
	assert.Equal(t, loader.PriorityHigh, opts.priority)
	assert.True(t, opts.streaming)
	assert.Equal(t, "a.glb", opts.out)
	assert.Equal(t, "https://cdn.example.com/a.glb", opts.url)
	assert.Equal(t, 2*time.Minute, opts.timeout)

	_, err = parseFetchArgs(nil)
	assert.ErrorContains(t, err, "usage")

	_, err = parseFetchArgs([]string{"--priority", "urgent", "u"})
	assert.ErrorContains(t, err, "invalid priority")

	_, err = parseFetchArgs([]string{"--bogus", "u"})
	assert.Error(t, err)
}

func TestFetch_ReportsProgressAndWritesFile(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.TextPayload("mesh", 800<<10))
	payload := srv.Payload()

	l := loader.New(loader.DefaultConfig(), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = l.Close() })

	out := filepath.Join(t.TempDir(), "nested", "robot.glb")
	var stdout bytes.Buffer
	err := fetch(context.Background(), l, fetchOptions{
		out:       out,
		priority:  loader.PriorityNormal,
		streaming: true,
		url:       srv.URL + "/robot.glb",
	}, &stdout)
	require.NoError(t, err)

	text := stdout.String()
	assert.Contains(t, text, "strategy: streaming")
	assert.Contains(t, text, fmt.Sprintf("bytes:    %d", len(payload)))
	assert.Contains(t, text, "source:   network")
	assert.Contains(t, text, "chunks:")

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	l := loader.New(loader.DefaultConfig(), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = l.Close() })

	var stdout bytes.Buffer
	err := fetch(context.Background(), l, fetchOptions{url: srv.URL + "/missing.glb"}, &stdout)
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrTransport)
	assert.NotContains(t, stdout.String(), "strategy:")
}

func TestRunFetch_SecondRunHitsDiskCache(t *testing.T) {
	srv := fixtures.NewOriginServer(t, fixtures.Payload(100<<10))
	configPath := writeCLIConfig(t)
	url := srv.URL + "/textures/wall.ktx2"

	var first bytes.Buffer
	require.Equal(t, 0, run([]string{"fetch", "--config", configPath, url}, &first, &first), first.String())
	assert.Contains(t, first.String(), "source:   network")

	requests := srv.Gets()
	var second bytes.Buffer
	require.Equal(t, 0, run([]string{"fetch", "--config", configPath, url}, &second, &second), second.String())
	assert.Contains(t, second.String(), "source:   cache")
	assert.Equal(t, requests, srv.Gets(), "cache hit issues no request")
}

func TestSweep_PrintsPerTierCounts(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	m, err := cache.NewManager(cache.DefaultConfig(), zaptest.NewLogger(t), cache.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "https://cdn.example.com/old.glb", []byte("old"), cache.Metadata{}, time.Minute))
	require.NoError(t, m.Put(ctx, "https://cdn.example.com/new.glb", []byte("new"), cache.Metadata{}, time.Hour))

	now = now.Add(10 * time.Minute)

	var stdout bytes.Buffer
	require.NoError(t, sweep(ctx, m, &stdout))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Contains(t, lines, "memory   1")
	assert.Equal(t, "Removed 1 expired entries", lines[len(lines)-1])
}

func TestRunSweep(t *testing.T) {
	configPath := writeCLIConfig(t)

	var stdout bytes.Buffer
	require.Equal(t, 0, run([]string{"sweep", "--config", configPath}, &stdout, &stdout), stdout.String())
	assert.Contains(t, stdout.String(), "Removed 0 expired entries")
}
