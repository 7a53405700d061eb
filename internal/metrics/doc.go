// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
资源加载、多级缓存、自适应质量与数据库五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 同时实现 cache.Recorder、loader.Recorder 与
quality.Recorder，nil Collector 上的调用均为空操作。

# 主要能力

  - HTTP 指标：serve 子命令的请求总数、耗时与响应大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 加载指标：按 strategy/status 统计的加载次数、耗时与字节数，
    以及平滑后的网速与延迟 Gauge。
  - 缓存指标：按 tier 分组的命中、未命中与淘汰计数，内存层常驻字节。
  - 质量指标：LOD 等级变化、自适应降级开关、帧率与健康分。
  - 数据库指标：持久层连接池 Gauge 与查询耗时 Histogram。
*/
package metrics
