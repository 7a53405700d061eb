package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig 返回加固后的 TLS 配置：TLS 1.2 起，仅 AEAD 套件
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// RedisTLSConfig 返回连接 Redis 使用的 TLS 配置
func RedisTLSConfig(serverName string) *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.ServerName = serverName
	return cfg
}

// AssetTransport 返回下载资源用的 Transport。
// maxConnsPerHost 与加载器的并发上限一致，<=0 表示不限制。
// 关闭透明 gzip：解压后的长度与 Content-Length、Content-Range 不一致。
func AssetTransport(maxConnsPerHost int) *http.Transport {
	if maxConnsPerHost < 0 {
		maxConnsPerHost = 0
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   max(maxConnsPerHost, 2),
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
}

// AssetHTTPClient 返回下载资源用的客户端。
// 不设置整体超时，单次请求超时由加载器通过 context 控制。
func AssetHTTPClient(maxConnsPerHost int) *http.Client {
	return &http.Client{
		Transport: AssetTransport(maxConnsPerHost),
	}
}
