// Package config 提供 chatdigest 的配置管理功能。
//
// 加载顺序为默认值、YAML 文件、CHATDIGEST_ 前缀的环境变量。
// 各段配置可转换为对应组件（compress、summarizer、cache）的配置，
// Sanitized 返回脱敏后的配置视图。
package config
