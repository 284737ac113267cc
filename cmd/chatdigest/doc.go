/*
Package main 提供 ChatDigest 服务端与命令行入口。

# 概述

cmd/chatdigest 把对话压缩流水线（分词器注册表 → 切块 → 摘要 → 复核）
包装为 HTTP API 与本地命令。配置按 默认值 → YAML → CHATDIGEST_ 环境变量
的顺序加载，日志使用 zap，指标通过独立端口以 Prometheus 格式暴露。

# 核心类型

  - Server      - 主服务器，管理 API 与 Metrics 两个 server.Manager 及优雅关闭
  - Middleware  - HTTP 中间件函数签名 func(http.Handler) http.Handler
  - components  - serve 与本地命令共用的压缩流水线装配结果

# 主要能力

  - 子命令：serve、compress、parse、models、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、BodyLimit、RateLimiter（基于 IP）、
    Authenticate（X-API-Key 或 HS256 Bearer JWT）
  - 摘要缓存：启用时连接 Redis，不可用则降级为无缓存并继续启动
  - 优雅关闭：SIGINT/SIGTERM → 排空 HTTP → 停止限流清理 → 关闭缓存 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
  - compress 命令压缩失败时输出带原文的 JSON 并以退出码 2 结束
*/
package main
