// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为资源缓存的 Redis 磁盘层提供
字节级读写、前缀扫描、健康检查与统计信息采集。

# 核心类型

  - Manager：持有 Redis 客户端与连接池配置，提供 Get/Set/Delete/
    ScanPrefix/StrLen 等操作，后台定时 Ping 并通过 zap 告警。
  - Config：地址、密码、连接池大小与健康检查间隔。
  - Stats：键数量、命中计数、内存使用与连接数（解析 INFO 输出）。

# 错误语义

  - ErrCacheMiss：键不存在。
  - ErrClosed：管理器已关闭。
*/
package cache
