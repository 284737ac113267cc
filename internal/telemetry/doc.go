// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 chatdigest 安装全局 TracerProvider、MeterProvider 与 W3C 传播器。
// 禁用时保持 noop 实现，不连接任何外部服务。
package telemetry
