package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// HashKey 生成持久层使用的确定性键（URL 的 SHA-256）
func HashKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Codec 负责持久层与磁盘层负载的可选 zstd 压缩。
// EncodeAll / DecodeAll 可并发调用。
type Codec struct {
	enabled   bool
	threshold int64
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCodec 创建编解码器。enabled 为 false 时 Encode 原样返回，
// 但仍可解码历史上压缩过的条目。
func NewCodec(enabled bool, threshold int64) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{
		enabled:   enabled,
		threshold: threshold,
		encoder:   enc,
		decoder:   dec,
	}, nil
}

// Encode 返回待持久化的条目；压缩无收益时保留原文
func (c *Codec) Encode(e *Entry) *Entry {
	if !c.enabled || e.Compressed || int64(len(e.Payload)) < c.threshold {
		return e
	}
	compressed := c.encoder.EncodeAll(e.Payload, make([]byte, 0, len(e.Payload)/2))
	if len(compressed) >= len(e.Payload) {
		return e
	}
	return e.withPayload(compressed, true)
}

// Decode 返回解压后的条目
func (c *Codec) Decode(e *Entry) (*Entry, error) {
	if !e.Compressed {
		return e, nil
	}
	raw, err := c.decoder.DecodeAll(e.Payload, make([]byte, 0, e.SizeBytes))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", e.Key, err)
	}
	if int64(len(raw)) != e.SizeBytes {
		return nil, fmt.Errorf("decompress %s: size mismatch %d != %d", e.Key, len(raw), e.SizeBytes)
	}
	return e.withPayload(raw, false), nil
}

// Close 释放编解码器资源
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
