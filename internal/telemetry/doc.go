// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 AssetFlow 加载器提供 TracerProvider，并集中配置 MeterProvider。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
