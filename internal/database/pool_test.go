package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/catenax-ng/product-agents-edc-sub000/config"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockPool(t *testing.T) (sqlmock.Sqlmock, *PoolManager) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	pm, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return mock, pm
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mock, pm := setupMockPool(t)

	mock.ExpectPing()
	assert.NoError(t, pm.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, pm.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Stats(t *testing.T) {
	_, pm := setupMockPool(t)

	stats := pm.GetStats()
	assert.Equal(t, 4, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mock, pm := setupMockPool(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	assert.NoError(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error { return assert.AnError }), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mock, pm := setupMockPool(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mock, pm := setupMockPool(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("duplicate key value violates unique constraint")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_Close(t *testing.T) {
	mock, pm := setupMockPool(t)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	mock.ExpectPing()
	// 探活协程可能在测试结束后仍在写日志，不用 zaptest
	pm, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, HealthCheckInterval: 20 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
}

func TestPoolConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPoolConfig().Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 0, MaxIdleConns: 1}.Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 0}.Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 2}.Validate())
}

func TestOpen_SQLite(t *testing.T) {
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	assert.Equal(t, 1, pm.GetStats().MaxOpenConnections)
	require.NoError(t, pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("CREATE TABLE probe (id INTEGER)").Error
	}))
	assert.True(t, pm.DB().Migrator().HasTable("probe"))
}

func TestDialector_UnsupportedDriver(t *testing.T) {
	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(config.DatabaseConfig{Driver: ""}, nil)
	assert.Error(t, err)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("pq: could not serialize access due to concurrent update (SQLSTATE 40001)")))
	assert.True(t, isRetryableError(errors.New("database is locked")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
	assert.False(t, isRetryableError(nil))
}

func TestPoolManager_InstrumentRecordsQueries(t *testing.T) {
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	// nil collector 不注册回调
	require.NoError(t, pm.Instrument(nil, "ledger"))

	collector := metrics.NewCollector("db_pool_test", zap.NewNop())
	require.NoError(t, pm.Instrument(collector, "ledger"))

	require.NoError(t, pm.DB().Exec("CREATE TABLE probe (id INTEGER)").Error)
	var n int64
	require.NoError(t, pm.DB().Raw("SELECT COUNT(*) FROM probe").Scan(&n).Error)

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "db_pool_test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, count)
}
