// Package summarizer 定义外部摘要协作者契约及其实现。
//
// 后端：Ollama（/api/generate）与 Anthropic Messages API。
// 装饰器：Guarded（熔断）、Instrumented（指标）、RateLimited（x/time/rate）、
// Cached（Redis + BLAKE3 键）。Build 按配置组装完整链路。
package summarizer
