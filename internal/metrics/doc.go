// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的网关指标采集能力，覆盖
HTTP、协商、联邦调用、缓存与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 的记录方法允许 nil 接收者，未启用指标时组件直接传 nil。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 协商指标：按结果统计协商次数与耗时、状态转换计数、活跃资产数。
  - 联邦调用指标：远程调用次数与耗时、去重前后行数、被丢弃的候选绑定。
  - 缓存指标：端点缓存与技能存储的命中/未命中。
  - 数据库指标：账本连接池的活跃/空闲连接数与查询耗时。
*/
package metrics
