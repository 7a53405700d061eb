// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理持久缓存表 asset_cache_entries 的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
由 iofs 源驱动读取。迁移器与 GORM AutoMigrate 生成相同的表结构，
生产环境关闭 database.auto_migrate 后改用 `assetflow migrate`。

# 核心类型

  - Migrator：Up/Down/Steps/Force/Version/Status/Info/Close。
  - DefaultMigrator：Migrator 的 golang-migrate 实现。
  - CLI：为命令行封装格式化输出。

# 工厂函数

NewMigratorFromDatabaseConfig 从 config.DatabaseConfig 构造连接串，
NewMigratorFromURL 直接使用连接串。
*/
package migration
