// =============================================================================
// 📦 测试数据工厂 - 资源源站
// =============================================================================
// 支持 HEAD 与 Range 的 httptest 源站，记录请求次数
//
// 使用方法:
//
//	origin := fixtures.NewOriginServer(t, fixtures.Payload(300<<10))
//	res, err := l.Load(ctx, origin.URL+"/models/robot.glb", loader.Options{})
//	assert.Equal(t, int64(1), origin.Gets())
// =============================================================================
package fixtures

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path"
	"sync/atomic"
	"testing"
	"time"
)

// OriginServer 静态资源源站
type OriginServer struct {
	*httptest.Server
	payload []byte

	gets   atomic.Int64
	ranges atomic.Int64
	heads  atomic.Int64
}

// NewOriginServer 启动源站，测试结束时自动关闭
func NewOriginServer(t testing.TB, payload []byte) *OriginServer {
	t.Helper()
	o := &OriginServer{payload: payload}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Close)
	return o
}

func (o *OriginServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		o.heads.Add(1)
	case http.MethodGet:
		o.gets.Add(1)
		if r.Header.Get("Range") != "" {
			o.ranges.Add(1)
		}
	}
	http.ServeContent(w, r, path.Base(r.URL.Path), time.Unix(0, 0), bytes.NewReader(o.payload))
}

// Payload 源站返回的内容
func (o *OriginServer) Payload() []byte { return o.payload }

// Gets GET 请求数（含 Range）
func (o *OriginServer) Gets() int64 { return o.gets.Load() }

// RangeGets 带 Range 头的 GET 请求数
func (o *OriginServer) RangeGets() int64 { return o.ranges.Load() }

// Heads HEAD 请求数
func (o *OriginServer) Heads() int64 { return o.heads.Load() }
