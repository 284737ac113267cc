/*
Package handlers 提供 chatdigest HTTP API 的请求处理器实现。

# 概述

handlers 包实现压缩、解析、模型列表与健康检查端点，
以及统一的响应与错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - CompressHandler  - 对话压缩，失败时返回携带原文的 COMPRESSION_FAILED 载荷
  - ParseHandler     - 对话解析（JSON 或 multipart 上传）与纯文本下载
  - ModelsHandler    - 目标模型列表，兼容旧的 llm_types 格式
  - HealthHandler    - 服务健康检查（/health, /healthz, /ready, /version）
  - Response         - 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        - 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   - 包装 http.ResponseWriter 以捕获状态码与响应大小
  - HealthCheck      - 可插拔健康检查接口（分词器、缓存）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteAnyError / WriteJSON
  - 请求验证：DecodeJSONBody（大小限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx），超出大小限制返回 413
*/
package handlers
