package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// readyTimeout 就绪检查的总超时，所有检查共享
const readyTimeout = 5 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	checkPass       = "pass"
	checkFail       = "fail"
)

// HealthCheck is a named dependency probe run by /ready.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler serves liveness, readiness and version.
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		started: time.Now(),
	}
}

// RegisterCheck adds a readiness probe (database pool, redis).
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth answers liveness without touching dependencies.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	})
}

// HandleHealthz Kubernetes 活跃度探针
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady runs every registered check concurrently under one deadline and
// answers 503 when any of them fails.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := h.runChecks(r.Context(), checks)

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    results,
	}
	for _, res := range results {
		if res.Status == checkFail {
			status.Status = statusUnhealthy
			WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	WriteJSON(w, http.StatusOK, status)
}

func (h *HealthHandler) runChecks(ctx context.Context, checks []HealthCheck) map[string]CheckResult {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]CheckResult, len(checks))

	// 检查失败记录在结果里，不取消其他检查
	var g errgroup.Group
	for _, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			res := CheckResult{Status: checkPass, Latency: latency.String()}
			if err != nil {
				res.Status, res.Message = checkFail, err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}

			mu.Lock()
			results[check.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck adapts a ping function (database pool, redis manager) to
// HealthCheck.
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建基于 ping 的健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }
