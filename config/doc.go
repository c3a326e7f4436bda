// Package config 提供网关的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，
// 环境变量以 AGENTGATEWAY_ 为前缀，例如 AGENTGATEWAY_FEDERATION_BATCH_SIZE。
package config
