// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 `assetflow serve` 的 HTTP 监听生命周期。

# 概述

Manager 封装 net/http.Server：Start 非阻塞监听，ListenAddr 返回
实际端口（支持 ":0"），Shutdown 在超时内排空请求。诊断接口与
Prometheus 指标分别运行在两个 Manager 上。

Wait 阻塞到 context 结束（通常来自 signal.NotifyContext）或任一
服务器异常退出。
*/
package server
