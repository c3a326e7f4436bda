// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接池管理，承载协商台账的持久化。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    GetStats()、Close() 与后台健康检查。
  - PoolConfig：最大空闲/打开连接数、生命周期、空闲超时与探活间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Open：按 config.DatabaseConfig 选择 postgres、mysql 或纯 Go 的
    sqlite 方言并完成连接与探活。
  - WithTransaction / WithTransactionRetry：事务执行，死锁、序列化失败、
    sqlite 锁等瞬时错误按指数退避重试。
  - Instrument：通过 GORM 回调上报各操作耗时，后台监控上报连接数。
*/
package database
