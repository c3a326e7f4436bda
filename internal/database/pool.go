package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/catenax-ng/product-agents-edc-sub000/config"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
)

// =============================================================================
// 🗄️ 台账数据库连接池
// =============================================================================

// ErrPoolClosed is returned by operations on a closed pool.
var ErrPoolClosed = errors.New("pool is closed")

// PoolManager owns the gorm handle of the agreement ledger and the sql.DB
// underneath it.
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}

	// 由 Instrument 设置，监控协程用它上报连接数
	metrics *metrics.Collector
	label   string
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 探活间隔，0 表示不启动后台监控
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 台账写入量很小，连接数保持较低
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        2,
		MaxOpenConns:        10,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive")
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Dialector maps a configured driver name to its gorm dialect. sqlite is the
// pure Go driver so the binary stays cgo free.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}

// poolConfigFor 合并默认值与 DatabaseConfig 中的覆盖项
func poolConfigFor(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = min(cfg.MaxIdleConns, pc.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.Driver == "sqlite" {
		// 单写者；:memory: 库每个连接各自独立
		pc.MaxOpenConns, pc.MaxIdleConns = 1, 1
	}
	return pc
}

// Open connects the configured database, sizes the pool and pings it once.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	pm, err := NewPoolManager(db, poolConfigFor(cfg), logger)
	if err != nil {
		return nil, err
	}
	if err := pm.Ping(context.Background()); err != nil {
		_ = pm.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return pm, nil
}

// NewPoolManager wraps an opened gorm handle. The background monitor starts
// only when HealthCheckInterval is positive.
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.monitor(cfg.HealthCheckInterval)
	}

	pm.logger.Debug("database pool ready",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return pm, nil
}

// DB 返回 GORM 数据库实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回 sql.DB 原始统计
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Close 停止监控并关闭连接；重复调用无副作用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stop)
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 📊 指标
// =============================================================================

const startedAtKey = "agentgateway:started_at"

// Instrument reports query latency per gorm operation and, from the
// monitor, the connection counts under the given database label. A nil
// collector is a no-op.
func (pm *PoolManager) Instrument(c *metrics.Collector, label string) error {
	if c == nil {
		return nil
	}
	pm.mu.Lock()
	pm.metrics, pm.label = c, label
	db := pm.db
	pm.mu.Unlock()

	before := func(tx *gorm.DB) { tx.InstanceSet(startedAtKey, time.Now()) }
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startedAtKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				c.RecordDBQuery(label, op, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	return errors.Join(
		hook("create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create"), before, after("create")),
		hook("query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query"), before, after("query")),
		hook("update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update"), before, after("update")),
		hook("delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete"), before, after("delete")),
		hook("raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw"), before, after("raw")),
	)
}

// registrar 是 gorm 回调链上 Before/After 返回值的方法集
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

func hook(op string, pre, post registrar, fnBefore, fnAfter func(*gorm.DB)) error {
	if err := pre.Register("metrics:before_"+op, fnBefore); err != nil {
		return fmt.Errorf("register %s callback: %w", op, err)
	}
	if err := post.Register("metrics:after_"+op, fnAfter); err != nil {
		return fmt.Errorf("register %s callback: %w", op, err)
	}
	return nil
}

// monitor 定期探活并上报连接数，Close 后退出
func (pm *PoolManager) monitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := pm.Ping(ctx)
		cancel()
		switch {
		case errors.Is(err, ErrPoolClosed):
			return
		case err != nil:
			pm.logger.Error("database health check failed", zap.Error(err))
			continue
		}

		stats := pm.Stats()
		pm.mu.RLock()
		c, label := pm.metrics, pm.label
		pm.mu.RUnlock()
		c.RecordDBConnections(label, stats.OpenConnections, stats.Idle)
	}
}

// PoolStats 连接池统计的 JSON 友好形式
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// GetStats 获取友好格式的统计信息
func (pm *PoolManager) GetStats() PoolStats {
	s := pm.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction runs fn in one transaction; fn's error rolls it back.
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	closed, db := pm.closed, pm.db
	pm.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry retries transient failures (deadlock, serialization,
// dropped connection, sqlite lock) with doubling backoff from 100ms.
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	attempts = max(attempts, 1)
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 1; ; attempt++ {
		if err = pm.WithTransaction(ctx, fn); err == nil || !isRetryableError(err) {
			return err
		}
		if attempt == attempts {
			return fmt.Errorf("transaction failed after %d retries: %w", attempts, err)
		}

		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

var retryableMessages = []string{
	"deadlock",
	"serialization failure", "40001",
	"connection reset", "connection refused", "broken pipe", "bad connection",
	"lock timeout", "lock wait timeout",
	"database is locked",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
