/*
Package federation 实现联邦执行引擎：把查询计划中的 SERVICE 片段按目标
分组、分批、去重后委托给远端（直接调用或经协商获得的端点），再把结果
合并回原始绑定流。

# 概述

远端目标的语法为

	scheme://[peer-address][#asset][?params]

http/https 直接调用；edc/edcs 先通过 agreement.Controller 协商资产端点，
edcs 走加固 TLS。peer 为空时使用配置的默认对端，asset 为空时从片段的
GRAPH 名称推断（必须恰好一个）。

# 执行流程

 1. 按具体目标分区，无法解析目标的绑定带警告丢弃
 2. 允许/拒绝模式校验（拒绝优先），在任何网络调用之前完成
 3. 每组最多 BatchSize 个绑定，其余带警告丢弃
 4. 按片段需要的变量去重，用 __binding 关联变量映射回原始绑定
 5. 每个目标一次合并请求：SPARQL 查询 POST，或技能调用的元组参数表 GET
 6. 结果按 __binding 展开，远端未回显的变量从原始绑定补回
 7. SILENT 调用失败时退化为该组的原始绑定

各组在 internal/pool 上并发执行，MergingIterator 按完成顺序汇合结果。

# 核心类型

  - Rewriter：解析 SERVICE 目标为 Call，Optimize 做连接线性化
  - Executor：上述执行流程
  - Transport / HTTPTransport：出站 HTTP，含 multipart 警告与每对端并发限制
  - Warnings：请求级警告收集器
*/
package federation
