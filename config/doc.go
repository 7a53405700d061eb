// Package config 提供 AssetFlow 的配置管理功能。
//
// 包含配置加载、校验与文件轮询重载。
// 支持从 YAML 文件与 ASSETFLOW_* 环境变量加载配置。
package config
