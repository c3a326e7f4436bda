/*
Package skill 保存本节点提供的技能：以技能资产 ID（含 Skill 段的 URN）
为键的参数化查询文本。

MemoryStore 用于单实例与测试；RedisStore 通过 internal/cache 持久化到
Redis，技能永不过期。联邦重写器通过 Exists 判断一个资产目标是否由本地
执行。
*/
package skill
