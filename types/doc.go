// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供数据空间联邦网关的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agreement、federation、
api 等上层模块提供统一的错误码与 Context 契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Target 标记
  - 协商错误码：NEGOTIATION_FAILED / NEGOTIATION_CONFLICT / NEGOTIATION_TIMEOUT
  - 上游错误码：UPSTREAM_ERROR / UPSTREAM_TIMEOUT

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithRoles
  - 错误工具链：AsError / IsErrorCode / GetErrorCode / IsRetryable
*/
package types
