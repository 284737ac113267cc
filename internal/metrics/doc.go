/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、压缩编排、
摘要器、分词器与缓存五个维度。

# 概述

Collector 通过 promauto 注册全部向量指标，所有指标按 namespace 隔离。
NewCollector 使用默认 Registry（由 /metrics 端点暴露），NewCollectorWith
允许传入独立 Registry，便于测试。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 压缩指标：按 model/outcome 的请求数、耗时、压缩前后 Token 数、轮数、截断降级次数。
  - 摘要器指标：按 backend/status 的调用数与耗时。
  - 分词器指标：退化为启发式估算的次数。
  - 缓存指标：摘要缓存命中与未命中。

Collector 同时实现 compress.Recorder、summarizer.Recorder、
summarizer.CacheRecorder 与 tokenizer.FallbackRecorder。
*/
package metrics
