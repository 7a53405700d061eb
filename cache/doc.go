// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 3D 模型与纹理资源的多级缓存：内存 LRU、磁盘缓存层
（LevelDB 或 Redis）与持久化结构化存储（GORM）。

# 概述

缓存只是尽力而为的加速层。任何一层不可用时都会静默降级到其余层，
全部失败也不会阻止调用方重新从网络获取资源。条目是不可变快照，
写入总是整体替换，读写交错时不会看到半更新状态。

# 核心类型

  - Manager：多级缓存管理器，Get 按 内存 → 磁盘 → 持久层 顺序查找，
    首次命中回填内存层；Put 总是写持久层，内存层按预算择机写入。
  - MemoryTier：按字节预算淘汰的 O(1) LRU，常驻字节数永不超过预算。
  - LevelDBTier / RedisTier：磁盘缓存层，以原始 URL 为键，记录带
    Cache-Control 与版本头的原始响应字节。
  - DurableStore：基于 GORM 的持久层，以 URL 的 SHA-256 为键。
  - Codec：可选 zstd 压缩。

# 主要能力

  - TTL 过期：读取时惰性清理，后台定时 EvictExpired 批量清理。
  - LRU 淘汰：按最近访问顺序，为新条目腾出内存预算。
  - 统计：总字节数、各层条目数、内存常驻字节与命中率。
*/
package cache
