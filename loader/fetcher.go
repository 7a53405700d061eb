package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/assetflow/internal/pool"
)

// fetcher 负责单次 HTTP 请求。不做并发控制，调用方持有信号量后再调用。
type fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// response 一次请求的结果
type response struct {
	Data       []byte
	StatusCode int
	Header     http.Header
	// 首个响应头到达耗时
	Latency time.Duration
	// 整次请求耗时
	Elapsed time.Duration
}

// probeResult HEAD 探测结果，Size 为 -1 表示未知
type probeResult struct {
	Size         int64
	AcceptRanges bool
	Latency      time.Duration
}

func (f *fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// probe 通过 HEAD 获取资源总大小
func (f *fetcher) probe(ctx context.Context, url string) (probeResult, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return probeResult{}, &TransportError{Method: http.MethodHead, URL: url, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return probeResult{}, &TransportError{Method: http.MethodHead, URL: url, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return probeResult{}, &TransportError{Method: http.MethodHead, URL: url, StatusCode: resp.StatusCode}
	}

	return probeResult{
		Size:         resp.ContentLength,
		AcceptRanges: strings.Contains(resp.Header.Get("Accept-Ranges"), "bytes"),
		Latency:      time.Since(start),
	}, nil
}

// fetchRange 请求 [off, off+length)；length <= 0 表示到结尾。
// allowFull 为 true 时接受 200 完整响应。
func (f *fetcher) fetchRange(ctx context.Context, url string, off, length int64, allowFull bool) (*response, error) {
	rng := fmt.Sprintf("bytes=%d-", off)
	if length > 0 {
		rng = fmt.Sprintf("bytes=%d-%d", off, off+length-1)
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, Err: err}
	}
	req.Header.Set("Range", rng)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, Err: err}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	want := length
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		first, last, _, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil || first != off {
			return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("%w: content-range %q", ErrMalformedRange, resp.Header.Get("Content-Range"))}
		}
		// 宽松模式下服务端可以截短到资源结尾
		if allowFull || length <= 0 {
			want = last - first + 1
		}
	case resp.StatusCode == http.StatusOK && allowFull:
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, StatusCode: resp.StatusCode,
			Err: ErrMalformedRange}
	default:
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, StatusCode: resp.StatusCode}
	}

	data, err := readBody(resp.Body, nil)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusPartialContent && int64(len(data)) != want {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Range: rng, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedRange, len(data), want)}
	}

	return &response{
		Data:       data,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    latency,
		Elapsed:    time.Since(start),
	}, nil
}

// fetchAll 单次 GET。onProgress 在声明了 Content-Length 时随读取调用。
func (f *fetcher) fetchAll(ctx context.Context, url string, onProgress func(loaded, total int64)) (*response, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Err: err}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode}
	}

	var progress func(int64)
	if total := resp.ContentLength; total > 0 && onProgress != nil {
		progress = func(loaded int64) { onProgress(loaded, total) }
	}

	data, err := readBody(resp.Body, progress)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	return &response{
		Data:       data,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    latency,
		Elapsed:    time.Since(start),
	}, nil
}

// readBody 读取完整响应体，返回独立的切片
func readBody(body io.Reader, progress func(loaded int64)) ([]byte, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if progress == nil {
		if _, err := buf.ReadFrom(body); err != nil {
			return nil, err
		}
		return bytes.Clone(buf.Bytes()), nil
	}

	chunk := pool.ChunkBufferPool.Get()
	defer pool.ChunkBufferPool.Put(chunk)

	var loaded int64
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			progress(loaded)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return bytes.Clone(buf.Bytes()), nil
}

// parseContentRange 解析 "bytes start-end/total"，total 未知时为 -1
func parseContentRange(v string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("unsupported unit in %q", v)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing size in %q", v)
	}
	s, e, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing range in %q", v)
	}
	if start, err = strconv.ParseInt(s, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if end, err = strconv.ParseInt(e, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("inverted range in %q", v)
	}
	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, 0, err
		}
	}
	return start, end, total, nil
}
