/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与关闭钩子。

# 概述

Manager 封装 net/http.Server。cmd/chatdigest 为 API 与 /metrics
各创建一个实例；配置证书时通过 internal/tlsutil 的加固配置提供 HTTPS。

# 主要能力

  - Start 在后台 goroutine 中运行服务；BoundAddr 返回实际监听地址。
  - Run 阻塞到 ctx 结束（通常来自 signal.NotifyContext）或服务异常退出。
  - Shutdown 在超时内排空请求，再按注册顺序执行 OnShutdown 钩子
    （关闭缓存连接、刷新遥测数据等）。
*/
package server
