// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法在 nil 接收者上是空操作，
// 组件可以在未配置指标时直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 协商指标
	negotiationsTotal     *prometheus.CounterVec
	negotiationDuration   *prometheus.HistogramVec
	negotiationTransition *prometheus.CounterVec
	activeAssets          prometheus.Gauge

	// 联邦调用指标
	remoteCallsTotal   *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	bindingsReceived   *prometheus.CounterVec
	rowsDispatched     *prometheus.CounterVec
	bindingsDropped    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 协商指标
	c.negotiationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_total",
			Help:      "Total number of contract negotiations by outcome",
		},
		[]string{"outcome"}, // outcome: success, failed, conflict, timeout
	)

	c.negotiationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_duration_seconds",
			Help:      "Duration of the full negotiation sequence in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	c.negotiationTransition = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_state_transitions_total",
			Help:      "Total number of asset negotiation state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.activeAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "negotiation_active_assets",
			Help:      "Number of assets currently negotiating or holding an endpoint",
		},
	)

	// 联邦调用指标
	c.remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Total number of delegated remote calls",
		},
		[]string{"scheme", "status"}, // status: success, error, degraded
	)

	c.remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"scheme"},
	)

	c.bindingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_bindings_received_total",
			Help:      "Candidate bindings handed to the execution engine",
		},
		[]string{"scheme"},
	)

	c.rowsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_rows_dispatched_total",
			Help:      "Deduplicated rows actually sent to remote targets",
		},
		[]string{"scheme"},
	)

	c.bindingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_bindings_dropped_total",
			Help:      "Candidate bindings dropped before dispatch",
		},
		[]string{"reason"}, // reason: unresolved_target, batch_limit
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤝 协商指标记录
// =============================================================================

// RecordNegotiation 记录一次完整协商
func (c *Collector) RecordNegotiation(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.negotiationsTotal.WithLabelValues(outcome).Inc()
	c.negotiationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordNegotiationTransition 记录资产状态转换
func (c *Collector) RecordNegotiationTransition(fromState, toState string) {
	if c == nil {
		return
	}
	c.negotiationTransition.WithLabelValues(fromState, toState).Inc()
}

// SetActiveAssets 更新活跃资产数
func (c *Collector) SetActiveAssets(n int) {
	if c == nil {
		return
	}
	c.activeAssets.Set(float64(n))
}

// =============================================================================
// 🌐 联邦调用指标记录
// =============================================================================

// RecordRemoteCall 记录一次远程调用
func (c *Collector) RecordRemoteCall(scheme, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.remoteCallsTotal.WithLabelValues(scheme, status).Inc()
	c.remoteCallDuration.WithLabelValues(scheme).Observe(duration.Seconds())
}

// RecordDedup 记录去重前后的行数
func (c *Collector) RecordDedup(scheme string, received, dispatched int) {
	if c == nil {
		return
	}
	c.bindingsReceived.WithLabelValues(scheme).Add(float64(received))
	c.rowsDispatched.WithLabelValues(scheme).Add(float64(dispatched))
}

// RecordDropped 记录被丢弃的候选绑定
func (c *Collector) RecordDropped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bindingsDropped.WithLabelValues(reason).Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
