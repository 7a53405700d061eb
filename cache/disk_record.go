package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// 磁盘层记录的自定义版本头
const (
	HeaderAssetVersion    = "X-Asset-Version"
	HeaderAssetKind       = "X-Asset-Kind"
	HeaderAssetCompressed = "X-Asset-Compressed"
)

var errCorruptRecord = errors.New("corrupt disk cache record")

// diskHeader 磁盘记录头：标准响应头 + 条目元信息
type diskHeader struct {
	Header      http.Header `json:"header"`
	CreatedAtMs int64       `json:"created_at_ms"`
	TTLMs       int64       `json:"ttl_ms"`
	SizeBytes   int64       `json:"size_bytes"`
	Metadata    Metadata    `json:"metadata"`
}

// responseHeader 生成条目对应的缓存响应头
func responseHeader(e *Entry) http.Header {
	h := http.Header{}
	h.Set("Cache-Control", "max-age="+strconv.FormatInt(int64(e.TTL/time.Second), 10))
	h.Set("Date", e.CreatedAt.UTC().Format(http.TimeFormat))
	h.Set("Content-Length", strconv.Itoa(len(e.Payload)))
	h.Set(HeaderAssetVersion, e.Version)
	h.Set(HeaderAssetKind, string(e.Metadata.Kind))
	if e.Metadata.ContentType != "" {
		h.Set("Content-Type", e.Metadata.ContentType)
	}
	if e.Metadata.ETag != "" {
		h.Set("ETag", e.Metadata.ETag)
	}
	if e.Compressed {
		h.Set(HeaderAssetCompressed, "zstd")
	}
	return h
}

// encodeDiskRecord 布局：4 字节头长度（大端）| JSON 头 | 原始负载
func encodeDiskRecord(e *Entry) ([]byte, error) {
	hdr := diskHeader{
		Header:      responseHeader(e),
		CreatedAtMs: e.CreatedAt.UnixMilli(),
		TTLMs:       e.TTL.Milliseconds(),
		SizeBytes:   e.SizeBytes,
		Metadata:    e.Metadata,
	}
	hb, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("marshal disk header: %w", err)
	}

	buf := make([]byte, 4+len(hb)+len(e.Payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(hb)))
	copy(buf[4:], hb)
	copy(buf[4+len(hb):], e.Payload)
	return buf, nil
}

func decodeDiskHeader(raw []byte) (diskHeader, int, error) {
	var hdr diskHeader
	if len(raw) < 4 {
		return hdr, 0, errCorruptRecord
	}
	n := int(binary.BigEndian.Uint32(raw[:4]))
	if 4+n > len(raw) {
		return hdr, 0, errCorruptRecord
	}
	if err := json.Unmarshal(raw[4:4+n], &hdr); err != nil {
		return hdr, 0, fmt.Errorf("%w: %v", errCorruptRecord, err)
	}
	return hdr, 4 + n, nil
}

func decodeDiskRecord(key string, raw []byte) (*Entry, error) {
	hdr, offset, err := decodeDiskHeader(raw)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, len(raw)-offset)
	copy(payload, raw[offset:])

	if cl := hdr.Header.Get("Content-Length"); cl != "" && cl != strconv.Itoa(len(payload)) {
		return nil, fmt.Errorf("%w: content length %s != %d", errCorruptRecord, cl, len(payload))
	}

	return &Entry{
		Key:        key,
		Payload:    payload,
		CreatedAt:  time.UnixMilli(hdr.CreatedAtMs),
		TTL:        time.Duration(hdr.TTLMs) * time.Millisecond,
		SizeBytes:  hdr.SizeBytes,
		Version:    hdr.Header.Get(HeaderAssetVersion),
		Metadata:   hdr.Metadata,
		Compressed: hdr.Header.Get(HeaderAssetCompressed) != "",
	}, nil
}

// expiresAtFromHeader 仅解析头部得到过期时间，用于清理扫描
func expiresAtFromHeader(raw []byte) (time.Time, error) {
	hdr, _, err := decodeDiskHeader(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(hdr.CreatedAtMs + hdr.TTLMs), nil
}
