// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为持久缓存层打开 GORM 连接并管理连接池。

# 概述

Open 按 config.DatabaseConfig 选择 postgres、mysql 或 sqlite 方言。
PoolManager 负责连接池参数、后台健康检查与连接数上报。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close()。
  - PoolConfig：最大空闲/打开连接数、生命周期、健康检查间隔。
    内存 sqlite 由 PoolConfigFrom 固定为单连接。
  - Recorder：连接数与查询耗时指标，由 internal/metrics.Collector 实现。

# 查询计时

InstrumentQueries 在 create/query/update/delete/row/raw 回调链上
注册前后钩子，按操作类型上报每条语句的耗时。
*/
package database
