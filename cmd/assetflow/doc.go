// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AssetFlow 命令行入口。

# 概述

cmd/assetflow 把 assetflow.Engine 暴露为子命令：单次加载资源、
启动诊断服务、清理过期缓存以及数据库迁移。程序支持 YAML 配置加载、
结构化日志（zap）、Prometheus 指标采集以及配置热重载。

# 核心类型

  - Server         ：诊断服务器，管理 HTTP 与 Metrics 双端口及优雅关闭
  - Middleware     ：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusRecorder ：包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 子命令：fetch、serve、sweep、migrate、health、version
  - 诊断接口：/health、/version、/debug/quality、/debug/cache、
    /debug/device、/debug/loader；POST /v1/preload 与 DELETE /v1/loads
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing；写接口额外经过基于 IP 的 RateLimiter
  - 配置热重载：Reloader 监听文件变更并调整日志级别
  - 优雅关闭：信号 → 停止重载 → 关闭 HTTP → 关闭 Metrics → 关闭引擎
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
