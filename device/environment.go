package device

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Option 可选能力值。缺失的探测结果统一用 None 表示。
type Option[T any] struct {
	value T
	ok    bool
}

// Some 构造一个有值的 Option
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None 构造一个缺失的 Option
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get 返回值以及是否存在
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// OrElse 缺失时返回 fallback
func (o Option[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Valid 是否存在值
func (o Option[T]) Valid() bool { return o.ok }

func (o Option[T]) String() string {
	if !o.ok {
		return "unknown"
	}
	return fmt.Sprint(o.value)
}

// Battery 电池状态
type Battery struct {
	Level    float64 // 0..1
	Charging bool
}

// Environment 设备探测输入。启动时解析一次，之后不再重复探测。
type Environment struct {
	UserAgent           string
	ScreenWidth         int
	ScreenHeight        int
	PixelRatio          float64
	TouchPoints         int
	HardwareConcurrency int

	DeviceMemoryGB Option[float64]
	Battery        Option[Battery]
	GPURenderer    Option[string]
}

// HostEnvironment 探测当前进程所在主机。
// 无法获取的字段（电池、GPU）保持 None。
func HostEnvironment() Environment {
	env := Environment{
		UserAgent:           "Go/" + runtime.Version() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")",
		PixelRatio:          1,
		HardwareConcurrency: runtime.NumCPU(),
		DeviceMemoryGB:      probeMemoryGB(),
	}

	switch runtime.GOOS {
	case "android":
		env.UserAgent += " Android Mobile"
		env.TouchPoints = 5
	case "ios":
		env.UserAgent += " iPhone"
		env.TouchPoints = 5
	}

	return env
}

// EnvironmentFromHeaders 根据 HTTP Client Hints 构造远端客户端的探测输入。
func EnvironmentFromHeaders(h http.Header) Environment {
	env := Environment{
		UserAgent:  h.Get("User-Agent"),
		PixelRatio: 1,
	}

	if v := h.Get("Sec-CH-UA-Mobile"); v == "?1" {
		env.TouchPoints = 5
		if !strings.Contains(strings.ToLower(env.UserAgent), "mobile") {
			env.UserAgent += " Mobile"
		}
	}
	if v, err := strconv.ParseFloat(h.Get("Device-Memory"), 64); err == nil && v > 0 {
		env.DeviceMemoryGB = Some(v)
	}
	if v, err := strconv.Atoi(h.Get("Viewport-Width")); err == nil && v > 0 {
		env.ScreenWidth = v
	}
	if v, err := strconv.ParseFloat(h.Get("DPR"), 64); err == nil && v > 0 {
		env.PixelRatio = v
	}

	return env
}

// probeMemoryGB 读取 /proc/meminfo；其他平台返回 None
func probeMemoryGB() Option[float64] {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return None[float64]()
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				break
			}
			return Some(kb / (1024 * 1024))
		}
	}
	return None[float64]()
}

// ProfileFromHeaders 按请求头分级远端客户端，不做记忆化
func ProfileFromHeaders(h http.Header) CapabilityProfile {
	return Classify(EnvironmentFromHeaders(h))
}
