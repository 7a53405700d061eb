package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport 网络失败、非 2xx 响应或畸形的范围响应
	ErrTransport = errors.New("transport error")
	// ErrMalformedRange 服务端未按请求返回 206 或 Content-Range 不符
	ErrMalformedRange = errors.New("malformed range response")
	// ErrAssembly 分块缺失或长度不符
	ErrAssembly = errors.New("chunk assembly failed")
	// ErrCancelled 加载已被 CancelLoad 取消，结果被丢弃
	ErrCancelled = errors.New("load cancelled")
	// ErrPreloadQueueFull 预加载队列已满且新条目优先级不高于队内最低者
	ErrPreloadQueueFull = errors.New("preload queue is full")
	// ErrClosed 加载器已关闭
	ErrClosed = errors.New("loader is closed")
)

// TransportError 单次 HTTP 请求失败的详情
type TransportError struct {
	Method     string
	URL        string
	Range      string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.Range != "" {
		msg += " [" + e.Range + "]"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "transport: " + msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is 使所有 TransportError 都匹配 ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsTransportError 判断是否为传输错误
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}
