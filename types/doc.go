/*
Package types 提供 chatdigest 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 tokenizer、chunker、
compress、api 等上层模块提供统一的类型契约。

# 核心类型

  - Role / Message    - 对话消息（Role、Content、Ordinal）
  - Transcript        - 有序、不可变的消息序列，Serialize 输出确定性文本
  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码、Retryable、Backend 标记

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithRunID / WithTargetModel
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
