// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/tlsutil"
)

// NoExpiration keeps a key until it is deleted.
const NoExpiration time.Duration = -1

// ErrClosed is returned after Close.
var ErrClosed = errors.New("cache manager is closed")

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Config 缓存配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// KeyPrefix 命名空间前缀，所有键都自动加上
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// DefaultTTL 用于 ttl 为 0 的写入；NoExpiration 表示永不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// TLSEnabled 使用加固 TLS 连接 Redis
	TLSEnabled bool `yaml:"tls_enabled" json:"tls_enabled"`

	// HealthCheckInterval 为 0 时不启动后台健康检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "agentgateway:",
		DefaultTTL:          NoExpiration,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 缓存管理器，封装 go-redis 客户端并为键加命名空间
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewManager 创建缓存管理器并验证连接
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLSEnabled {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.String("prefix", config.KeyPrefix),
		zap.Bool("tls", config.TLSEnabled),
	)
	return m, nil
}

func (m *Manager) key(k string) string { return m.config.KeyPrefix + k }

// acquire holds the read lock for one operation unless the manager is closed.
func (m *Manager) acquire() (release func(), err error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	return m.mu.RUnlock, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 获取缓存值；不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	release, err := m.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	val, err := m.redis.Get(ctx, m.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set 设置缓存值。ttl 为 0 时使用 DefaultTTL，NoExpiration 表示永不过期
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0 // go-redis: 0 = no expiration
	}
	if err := m.redis.Set(ctx, m.key(key), value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON 获取 JSON 缓存值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 设置 JSON 缓存值
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除键，返回实际删除的数量
func (m *Manager) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	release, err := m.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
	}
	n, err := m.redis.Del(ctx, full...).Result()
	if err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return 0, fmt.Errorf("cache delete failed: %w", err)
	}
	return n, nil
}

// Exists 返回存在的键数量
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	release, err := m.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
	}
	count, err := m.redis.Exists(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache exists check failed: %w", err)
	}
	return count, nil
}

// Scan 列出匹配 pattern 的键（不含前缀）
func (m *Manager) Scan(ctx context.Context, pattern string) ([]string, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := m.redis.Scan(ctx, cursor, m.key(pattern), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("cache scan failed: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, m.config.KeyPrefix))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.logger.Info("closing cache manager")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		stats, err := m.GetStats(ctx)
		cancel()
		switch {
		case errors.Is(err, ErrClosed):
			return
		case err != nil:
			m.logger.Error("cache health check failed", zap.Error(err))
		default:
			m.logger.Debug("cache health check passed",
				zap.Uint64("hits", stats.Hits),
				zap.Uint64("misses", stats.Misses),
				zap.Int("connections", stats.Connections),
			)
		}
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	UsedMemory  int64  `json:"used_memory"`
	MaxMemory   int64  `json:"max_memory"`
	Connections int    `json:"connections"`
}

// GetStats 读取 INFO 中的命中、内存与连接统计
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	info, err := m.redis.Info(ctx, "stats", "memory", "clients").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis info: %w", err)
	}
	return parseInfo(info), nil
}

func parseInfo(info string) *Stats {
	stats := &Stats{}
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		name, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		switch name {
		case "keyspace_hits":
			stats.Hits, _ = strconv.ParseUint(value, 10, 64)
		case "keyspace_misses":
			stats.Misses, _ = strconv.ParseUint(value, 10, 64)
		case "used_memory":
			stats.UsedMemory, _ = strconv.ParseInt(value, 10, 64)
		case "maxmemory":
			stats.MaxMemory, _ = strconv.ParseInt(value, 10, 64)
		case "connected_clients":
			stats.Connections, _ = strconv.Atoi(value)
		}
	}
	return stats
}
