// =============================================================================
// 📦 测试数据工厂 - 资源负载与设备
// =============================================================================
// 提供确定性的资源负载与各类设备的 User-Agent
// =============================================================================
package fixtures

import "bytes"

// =============================================================================
// 🧱 负载
// =============================================================================

// Payload 返回 size 字节的确定性内容，不同偏移处的字节可区分
func Payload(size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(i*31 + i/251)
	}
	return out
}

// TextPayload 以 word 重复填充到 size 字节
func TextPayload(word string, size int) []byte {
	return bytes.Repeat([]byte(word), size/len(word)+1)[:size]
}

// =============================================================================
// 📱 设备
// =============================================================================

const (
	// UserAgentIPhone iOS 手机
	UserAgentIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"
	// UserAgentAndroidPhone Android 手机
	UserAgentAndroidPhone = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36"
	// UserAgentIPad iPad
	UserAgentIPad = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"
	// UserAgentAndroidTablet Android 平板（无 Mobile 标记）
	UserAgentAndroidTablet = "Mozilla/5.0 (Linux; Android 14; SM-X710) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	// UserAgentDesktop Windows 桌面浏览器
	UserAgentDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
)
