// =============================================================================
// 📦 AgentGateway 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTGATEWAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 是环境变量的默认前缀
const DefaultEnvPrefix = "AGENTGATEWAY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是网关的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 技能存储后端
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 协商台账数据库
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Negotiation 合同协商配置
	Negotiation NegotiationConfig `yaml:"negotiation" env:"NEGOTIATION"`

	// Federation 联邦执行配置
	Federation FederationConfig `yaml:"federation" env:"FEDERATION"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个来源 IP 的限流速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的 API Key，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWT 认证，Secret 与 PublicKey 均为空时不启用
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
	// 回调端点对对端暴露时使用的证书；两者都设置才启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 PEM 公钥
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled reports whether any verification key is configured.
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig Redis 配置。Addr 为空时技能存储退回内存实现。
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否使用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置。Driver 为空时不记录协商台账。
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// NegotiationConfig 合同协商配置
type NegotiationConfig struct {
	// 连接器管理 API 地址
	ManagementURL string `yaml:"management_url" env:"MANAGEMENT_URL"`
	// 管理 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 数据空间协议
	Protocol string `yaml:"protocol" env:"PROTOCOL"`
	// 对端投递端点数据的本节点回调地址
	CallbackAddress string `yaml:"callback_address" env:"CALLBACK_ADDRESS"`
	// 目标未写对端地址时使用的默认对端
	DefaultPeer string `yaml:"default_peer" env:"DEFAULT_PEER"`
	// 整个协商序列的时间预算
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 单次管理请求超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// FederationConfig 联邦执行配置
type FederationConfig struct {
	// 每个目标每次请求的绑定数上限，0 表示不限
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 目标地址白名单正则
	Allow string `yaml:"allow" env:"ALLOW"`
	// 目标地址黑名单正则，优先于白名单
	Deny string `yaml:"deny" env:"DENY"`
	// 资产白名单正则
	AssetAllow string `yaml:"asset_allow" env:"ASSET_ALLOW"`
	// 资产黑名单正则
	AssetDeny string `yaml:"asset_deny" env:"ASSET_DENY"`
	// 出站连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// 出站读超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 出站写超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 单次远程调用总超时
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	// 分发协程池大小
	PoolWorkers int `yaml:"pool_workers" env:"POOL_WORKERS"`
	// 结果合并轮询间隔
	MergePollInterval time.Duration `yaml:"merge_poll_interval" env:"MERGE_POLL_INTERVAL"`
	// 每个对端主机的最大并发连接
	MaxConnsPerPeer int `yaml:"max_conns_per_peer" env:"MAX_CONNS_PER_PEER"`
	// 本节点拥有的图资产
	LocalGraphs []string `yaml:"local_graphs" env:"LOCAL_GRAPHS"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath 设置 YAML 文件路径；文件不存在时跳过
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器，按添加顺序执行
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次应用默认值、YAML 文件和环境变量，然后执行验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.applyFile(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *Config) error {
	if l.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(l.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv 按 env 标签递归覆盖字段，键为 PREFIX_SECTION_FIELD。
// 所有无法解析的变量一并返回。
func applyEnv(v reflect.Value, prefix string) error {
	var errs []error
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" || !field.CanSet() {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	}
	return errors.Join(errs...)
}

var durationType = reflect.TypeFor[time.Duration]()

// parseInto 把字符串写入基础类型字段；切片按逗号拆分
func parseInto(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if c.Negotiation.Timeout <= 0 {
		errs = append(errs, "negotiation timeout must be positive")
	}
	if c.Negotiation.PollInterval <= 0 {
		errs = append(errs, "negotiation poll_interval must be positive")
	}

	f := c.Federation
	if f.BatchSize < 0 {
		errs = append(errs, "federation batch_size must not be negative")
	}
	if f.MaxConnsPerPeer < 0 {
		errs = append(errs, "federation max_conns_per_peer must not be negative")
	}
	for name, expr := range map[string]string{
		"allow": f.Allow, "deny": f.Deny, "asset_allow": f.AssetAllow, "asset_deny": f.AssetDeny,
	} {
		if expr == "" {
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Sprintf("federation %s pattern: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
