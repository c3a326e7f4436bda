/*
Package sparql 提供联邦执行所需的最小 SPARQL 代数：RDF Term、不可变
Binding、Binding 迭代器、查询计划 AST 以及文本/结果序列化。

# 概述

查询计划用封闭接口 Node 表示的 tagged union 描述（BGP、Join、Sequence、
Union、Graph、Service、Project、Filter、Values），重写器和优化器通过
Transform / Walk 这类普通树变换函数实现，而不是继承。

# 核心类型

  - Term / Binding：RDF 项与变量绑定，Binding 的所有修改操作都返回新值
  - Iterator：Next / Binding / Err / Close 风格的绑定流
  - Node：查询计划片段

# 主要能力

  - Variables：静态分析片段引用的变量集合
  - Serialize / SerializeSelect：生成 SPARQL 1.1 文本
  - DecodeResults / EncodeResults：application/sparql-results+json 编解码
*/
package sparql
