// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Negotiation.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

negotiation:
  management_url: "http://connector:8181/management"
  default_peer: "provider:8282"
  poll_interval: 500ms

federation:
  batch_size: 32
  deny: "^https?://internal\\."
  local_graphs:
    - "urn:cx:Graph:local"

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "http://connector:8181/management", cfg.Negotiation.ManagementURL)
	assert.Equal(t, "provider:8282", cfg.Negotiation.DefaultPeer)
	assert.Equal(t, 500*time.Millisecond, cfg.Negotiation.PollInterval)
	// 未写的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Negotiation.Timeout)

	assert.Equal(t, 32, cfg.Federation.BatchSize)
	assert.Equal(t, `^https?://internal\.`, cfg.Federation.Deny)
	assert.Equal(t, []string{"urn:cx:Graph:local"}, cfg.Federation.LocalGraphs)
	assert.Equal(t, 8, cfg.Federation.MaxConnsPerPeer)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTGATEWAY_SERVER_HTTP_PORT", "7777")
	t.Setenv("AGENTGATEWAY_REDIS_ADDR", "env-redis:6379")
	t.Setenv("AGENTGATEWAY_NEGOTIATION_TIMEOUT", "45s")
	t.Setenv("AGENTGATEWAY_FEDERATION_LOCAL_GRAPHS", "urn:a, urn:b")
	t.Setenv("AGENTGATEWAY_FEDERATION_BATCH_SIZE", "4")
	t.Setenv("AGENTGATEWAY_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("AGENTGATEWAY_SERVER_JWT_SECRET", "s3cret")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Negotiation.Timeout)
	assert.Equal(t, []string{"urn:a", "urn:b"}, cfg.Federation.LocalGraphs)
	assert.Equal(t, 4, cfg.Federation.BatchSize)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.True(t, cfg.Server.JWT.Enabled())
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
negotiation:
  default_peer: "yaml-peer"
  api_key: "yaml-key"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))
	t.Setenv("AGENTGATEWAY_NEGOTIATION_DEFAULT_PEER", "env-peer")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-peer", cfg.Negotiation.DefaultPeer)
	assert.Equal(t, "yaml-key", cfg.Negotiation.APIKey)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("AGENTGATEWAY_NEGOTIATION_POLL_INTERVAL", "soon")

	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "AGENTGATEWAY_NEGOTIATION_POLL_INTERVAL")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("AGENTGATEWAY_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: [invalid\n"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "ledger disabled", modify: func(c *Config) { c.Database.Driver = "" }},
		{name: "invalid HTTP port", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "unknown driver", modify: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "unsupported database driver"},
		{name: "zero negotiation timeout", modify: func(c *Config) { c.Negotiation.Timeout = 0 }, wantErr: "negotiation timeout"},
		{name: "zero poll interval", modify: func(c *Config) { c.Negotiation.PollInterval = 0 }, wantErr: "poll_interval"},
		{name: "negative batch size", modify: func(c *Config) { c.Federation.BatchSize = -1 }, wantErr: "batch_size"},
		{name: "tls cert without key", modify: func(c *Config) { c.Server.TLSCertFile = "/etc/gateway/cert.pem" }, wantErr: "tls_cert_file"},
		{name: "bad deny pattern", modify: func(c *Config) { c.Federation.Deny = "([" }, wantErr: "deny pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/var/lib/agentgateway/ledger.db"},
			expected: "/var/lib/agentgateway/ledger.db",
		},
		{name: "unknown driver", config: DatabaseConfig{Driver: "unknown"}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(good, []byte("server:\n  http_port: 8081\n"), 0o644))
	bad := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("invalid: [yaml"), 0o644))

	assert.NotPanics(t, func() {
		assert.Equal(t, 8081, MustLoad(good).Server.HTTPPort)
	})
	assert.Panics(t, func() { MustLoad(bad) })
}
