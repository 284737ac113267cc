/*
包 cache 提供基于 Redis 的摘要缓存，支持连接池、健康检查与进程内命中统计。

# 概述

Manager 封装 go-redis 客户端，以 JSON 形式保存块摘要（Entry），
键由上层按模型、指令与块文本计算。Manager 负责连接生命周期：
初始化时 Ping、后台定时健康检查、Close 时停止检查并释放连接。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping/GetStats
  - Config：地址、密码、键前缀、默认 TTL、TLS 开关与健康检查间隔
  - Entry：一条缓存的摘要及其来源
  - Stats：命中、未命中与键数量

# 错误语义

ErrCacheMiss 表示未命中，ErrClosed 表示管理器已关闭。
*/
package cache
