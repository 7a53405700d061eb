package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/assetflow"
	"github.com/BaSui01/assetflow/config"
	"github.com/BaSui01/assetflow/testutil/fixtures"
)

func serveTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Device.Tier = "desktop"
	cfg.Cache.DiskBackend = "none"
	cfg.Metrics.Enabled = false
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

type testServer struct {
	*Server
	handler http.Handler
}

func newTestServer(t *testing.T, cfg *config.Config, configPath string) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	eng, err := assetflow.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	// 校验通过后改为随机端口
	cfg.Server.HTTPPort = 0

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(cfg, configPath, logger, zap.NewAtomicLevelAt(zapcore.InfoLevel), eng)
	return &testServer{Server: srv, handler: srv.Handler(ctx)}
}

func (s *testServer) do(t *testing.T, method, target string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, serveTestConfig(), "")

	w, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "desktop", body["tier"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestServer_Version(t *testing.T) {
	s := newTestServer(t, serveTestConfig(), "")

	w, body := s.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, body["version"])
	assert.Contains(t, body, "git_commit")
}

func TestServer_DebugEndpoints(t *testing.T) {
	s := newTestServer(t, serveTestConfig(), "")

	w, body := s.do(t, http.MethodGet, "/debug/quality", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["enabled"])
	assert.Contains(t, body, "levels")
	assert.Contains(t, body, "monitor")

	w, body = s.do(t, http.MethodGet, "/debug/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "hit_ratio")
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, stats, "memory_budget_bytes")

	w, body = s.do(t, http.MethodGet, "/debug/loader", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["in_flight"])
	assert.Equal(t, float64(0), body["preload_queue"])
	assert.Equal(t, "progressive", body["strategy"], "initial speed estimate falls in the progressive band")
}

func TestServer_DebugDeviceClassifiesClient(t *testing.T) {
	s := newTestServer(t, serveTestConfig(), "")

	header := http.Header{}
	header.Set("User-Agent", fixtures.UserAgentIPhone)
	w, body := s.do(t, http.MethodGet, "/debug/device", header)
	require.Equal(t, http.StatusOK, w.Code)

	engine := body["engine"].(map[string]any)
	client := body["client"].(map[string]any)
	assert.Equal(t, "desktop", engine["tier"])
	assert.Equal(t, "mobile", client["tier"])
	assert.NotEmpty(t, client["recommended_formats"])
}

func TestServer_PreloadAndCancel(t *testing.T) {
	cfg := serveTestConfig()
	cfg.Loader.PreloadQueueSize = 1
	s := newTestServer(t, cfg, "")

	w, body := s.do(t, http.MethodPost, "/v1/preload?url=https://cdn.example.com/a.glb&priority=high", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(1), body["priority"])
	assert.Equal(t, float64(1), body["queued"])

	// 队列已满且优先级不更高
	w, _ = s.do(t, http.MethodPost, "/v1/preload?url=https://cdn.example.com/b.glb&priority=low", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/preload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/preload?url=x&priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodDelete, "/v1/loads?url=https://cdn.example.com/a.glb", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["cancelled"])

	w, _ = s.do(t, http.MethodGet, "/v1/preload", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestParsePreloadPriority(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"low", -1, false},
		{"HIGH", 1, false},
		{"7", 7, false},
		{"urgent", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePreloadPriority(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := newTestServer(t, serveTestConfig(), "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown()

	assert.Nil(t, s.metricsManager, "metrics server is skipped when metrics are disabled")

	resp, err := http.Get("http://" + s.httpManager.ListenAddr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	s.Shutdown()
	assert.False(t, s.httpManager.Running())
}

func TestServer_ReloadAdjustsLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	cfg := serveTestConfig()
	s := newTestServer(t, cfg, path)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown()
	require.NotNil(t, s.reloader)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
	require.NoError(t, s.reloader.Reload())

	assert.Equal(t, zapcore.WarnLevel, s.level.Level())
}
