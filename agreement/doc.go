// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agreement 实现数据空间的合同协商引擎：把“向对端 P 获取资产 X”
转换为一个带凭证、有时效的缓存端点。

# 概述

每个资产对应一个严格顺序推进的状态机：

	INACTIVE → ACTIVATING → OFFER_DISCOVERED → NEGOTIATING → AGREED →
	PROVISIONING → TRANSFERRED → ENDPOINT_READY

任一非终态都可进入 FAILED，并触发完全停用（移出活跃集合，丢弃合同、
传输与端点记录）。ENDPOINT_READY 一直保持到端点凭证过期被淘汰，
此后资产回到 INACTIVE，可以重新协商。

# 核心类型

  - Controller：协商引擎，提供 GetEndpoint / Negotiate / OnEndpointReady /
    Deactivate / States / Subscribe
  - DataManagement：连接器管理 API 契约，HTTPManagement 为其 HTTP 实现
  - Ledger：可选审计账本，GormLedger 基于 gorm 持久化
  - EndpointReference：端点 URL + 认证头 + 描述属性，凭证内嵌 exp 声明

# 并发模型

同一资产同时只允许一个协商；第二个并发请求立即以冲突失败而不是排队。
活跃集合、合同、传输、端点四张表各自持有一把互斥锁，只在单次 map 操作
期间持有，从不跨越网络调用。协商与回调等待采用固定间隔轮询。
*/
package agreement
