// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentGateway 服务端程序入口。

# 概述

cmd/agentgateway 装配协商引擎、联邦执行器、技能存储与网关 HTTP API，
提供 serve、negotiate、health、version 子命令。配置来自 YAML 文件与
AGENTGATEWAY_ 前缀的环境变量，日志使用 zap，指标在独立端口以
Prometheus 格式暴露。

# 核心类型

  - Server     ：主服务器，管理 HTTP、Metrics 双端口及组件生命周期
  - Middleware ：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 组件装配：数据库驱动为空时关闭账本，Redis 地址为空时技能存储使用内存
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key）、JWTAuth（HS256/RS256）
  - 回调路径 /callback/endpoint-data-reference 免认证
  - 优雅关闭：断开 websocket → 关闭 HTTP → 关闭 Metrics → 工作池 → 存储 → 遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
