// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供网关 HTTP/HTTPS 监听的生命周期管理。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供非阻塞的
    Start/StartTLS、优雅的 Shutdown，以及监听 SIGINT/SIGTERM 或
    上下文结束的 WaitForShutdown。
  - Config：监听地址、读写/空闲超时、最大请求头与关闭超时。

StartTLS 使用 tlsutil 的加固配置；Addr 在启动后返回实际监听地址，
便于以 ":0" 启动的测试与回调地址推导。
*/
package server
