// =============================================================================
// 📦 AgentGateway 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Negotiation: DefaultNegotiationConfig(),
		Federation:  DefaultFederationConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    150 * time.Second, // 需覆盖协商预算加远程调用
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgateway",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "agentgateway:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentgateway",
		Name:            "agentgateway",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultNegotiationConfig 返回默认协商配置
func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		ManagementURL:   "http://localhost:8181/management",
		Protocol:        "dataspace-protocol-http",
		CallbackAddress: "http://localhost:8080/callback/endpoint-data-reference",
		Timeout:         30 * time.Second,
		PollInterval:    time.Second,
		RequestTimeout:  10 * time.Second,
	}
}

// DefaultFederationConfig 返回默认联邦执行配置
func DefaultFederationConfig() FederationConfig {
	return FederationConfig{
		BatchSize:         0,
		ConnectTimeout:    10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      30 * time.Second,
		CallTimeout:       120 * time.Second,
		PoolWorkers:       16,
		MergePollInterval: 10 * time.Millisecond,
		MaxConnsPerPeer:   8,
	}
}
