// Package tlsutil 提供集中式 TLS 配置，
// 为对端安全调用（edcs/https）、管理 API 客户端、Redis 连接和 HTTPS 监听
// 提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
