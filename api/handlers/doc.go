// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供网关 HTTP API 的请求处理器实现。

# 核心类型

  - HealthHandler      ：/health、/healthz、/ready、/version
  - CallbackHandler    ：对端投递端点数据的回调，未匹配同样返回 200
  - NegotiationHandler ：协商、活动资产列表、停用、端点查询与账本历史
  - EventHandler       ：协商状态变化的 websocket 推送
  - SkillHandler       ：技能文本的存取
  - Response / ErrorInfo：统一 JSON 响应结构
  - ResponseWriter     ：捕获状态码，透传 Flush/Hijack 以支持 websocket

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErrorFrom / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、DecodeJSONBodyLenient、ValidateContentType
  - ErrorCode → HTTP 状态码映射，协商冲突 409、协商超时 504、协商失败 502
  - 处理器只依赖窄接口（Negotiator、EndpointSink、EventSource、skill.Store），便于替换与测试
*/
package handlers
