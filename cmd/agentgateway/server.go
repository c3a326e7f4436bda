package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/api/handlers"
	"github.com/catenax-ng/product-agents-edc-sub000/config"
	"github.com/catenax-ng/product-agents-edc-sub000/federation"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/cache"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/database"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/pool"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/server"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/telemetry"
	"github.com/catenax-ng/product-agents-edc-sub000/skill"
)

const callbackPath = "/callback/endpoint-data-reference"

// skipAuthPaths 不经过认证的路径；回调由对端连接器调用，不携带网关凭据
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/version", callbackPath}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentGateway 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler      *handlers.HealthHandler
	callbackHandler    *handlers.CallbackHandler
	negotiationHandler *handlers.NegotiationHandler
	eventHandler       *handlers.EventHandler
	skillHandler       *handlers.SkillHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 领域组件
	db         *database.PoolManager
	cache      *cache.Manager
	ledger     *agreement.GormLedger
	skills     skill.Store
	controller *agreement.Controller
	executor   *federation.Executor
	workers    *pool.GoroutinePool

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentgateway", s.logger)

	// 2. 初始化存储、协商引擎与联邦执行器
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("ledger_enabled", s.ledger != nil),
		zap.Bool("redis_skills", s.cache != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 按配置装配领域组件；数据库与 Redis 均为可选
func (s *Server) initComponents() error {
	var opts []agreement.Option
	opts = append(opts, agreement.WithMetrics(s.metricsCollector))

	// 账本：未配置驱动时关闭
	if s.cfg.Database.Driver != "" {
		db, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		s.db = db
		if err := db.Instrument(s.metricsCollector, "ledger"); err != nil {
			return fmt.Errorf("instrument database: %w", err)
		}
		ledger, err := agreement.NewGormLedger(db)
		if err != nil {
			return err
		}
		s.ledger = ledger
		opts = append(opts, agreement.WithLedger(ledger))
	} else {
		s.logger.Info("database driver not configured, agreement ledger disabled")
	}

	// 技能存储：Redis 地址为空时使用内存实现
	if s.cfg.Redis.Addr != "" {
		c, err := cache.NewManager(cacheConfig(s.cfg.Redis), s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cache = c
		s.skills = skill.NewRedisStore(c, s.metricsCollector, s.logger)
	} else {
		s.skills = skill.NewMemoryStore()
	}

	dm := agreement.NewHTTPManagement(managementConfig(s.cfg.Negotiation), s.logger)
	s.controller = agreement.NewController(dm, controllerConfig(s.cfg.Negotiation), s.logger, opts...)

	executor, workers, err := newExecutor(s.cfg.Federation, s.cfg.Negotiation.DefaultPeer, s.controller, s.skills, s.metricsCollector, s.logger)
	if err != nil {
		return err
	}
	s.executor, s.workers = executor, workers
	return nil
}

// newExecutor 装配改写器、传输与执行器
func newExecutor(cfg config.FederationConfig, defaultPeer string, endpoints federation.EndpointProvider,
	skills federation.SkillLookup, collector *metrics.Collector, logger *zap.Logger) (*federation.Executor, *pool.GoroutinePool, error) {
	assets, err := federation.CompilePatterns(cfg.AssetAllow, cfg.AssetDeny)
	if err != nil {
		return nil, nil, fmt.Errorf("asset patterns: %w", err)
	}
	targets, err := federation.CompilePatterns(cfg.Allow, cfg.Deny)
	if err != nil {
		return nil, nil, fmt.Errorf("target patterns: %w", err)
	}

	rewriter := federation.NewRewriter(endpoints, skills, federation.RewriterConfig{
		DefaultPeer: defaultPeer,
		LocalGraphs: cfg.LocalGraphs,
		Assets:      assets,
	}, logger)

	tc := federation.DefaultTransportConfig()
	if cfg.ConnectTimeout > 0 {
		tc.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ReadTimeout > 0 {
		tc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		tc.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.CallTimeout > 0 {
		tc.CallTimeout = cfg.CallTimeout
	}
	tc.MaxConnsPerPeer = int64(cfg.MaxConnsPerPeer)

	pc := pool.DefaultGoroutinePoolConfig()
	if cfg.PoolWorkers > 0 {
		pc.MaxWorkers = cfg.PoolWorkers
		pc.QueueSize = cfg.PoolWorkers * 4
	}
	pc.PanicHandler = func(v any) {
		logger.Error("federation task panicked", zap.Any("panic", v))
	}
	workers := pool.NewGoroutinePool(pc)

	executor := federation.NewExecutor(rewriter, federation.NewHTTPTransport(tc, logger), federation.Config{
		BatchSize:    cfg.BatchSize,
		Targets:      targets,
		PollInterval: cfg.MergePollInterval,
	}, logger, federation.WithPool(workers), federation.WithExecutorMetrics(collector))

	return executor, workers, nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.db != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	var history handlers.HistorySource
	if s.ledger != nil {
		history = s.ledger
	}

	s.callbackHandler = handlers.NewCallbackHandler(s.controller, s.logger)
	s.negotiationHandler = handlers.NewNegotiationHandler(s.controller, history, s.cfg.Negotiation.DefaultPeer, s.logger)
	s.eventHandler = handlers.NewEventHandler(s.controller, handlers.DefaultEventStreamConfig(), s.logger)
	s.skillHandler = handlers.NewSkillHandler(s.skills, s.logger)

	s.logger.Info("Handlers initialized")
}

// Executor 返回联邦执行器，供嵌入的查询处理器使用
func (s *Server) Executor() *federation.Executor {
	return s.executor
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 对端连接器回调
	mux.HandleFunc(callbackPath, s.callbackHandler.HandleEndpointDataReference)

	// API 路由
	mux.HandleFunc("/api/v1/negotiations", s.negotiationHandler.HandleNegotiations)
	mux.HandleFunc("/api/v1/negotiations/history", s.negotiationHandler.HandleHistory)
	mux.HandleFunc("/api/v1/negotiations/events", s.eventHandler.HandleEvents)
	mux.HandleFunc("/api/v1/endpoints", s.negotiationHandler.HandleEndpoint)
	mux.HandleFunc("/api/v1/skills", s.skillHandler.HandleSkills)

	return mux
}

// buildHandler 构建中间件链
func (s *Server) buildHandler() http.Handler {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	}
	if s.metricsCollector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.metricsCollector))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.Server.JWT.Enabled() {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	}

	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.buildHandler(), serverConfig, s.logger)

	// 启动服务器（非阻塞）
	useTLS := s.cfg.Server.TLSCertFile != ""
	var err error
	if useTLS {
		err = s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()), zap.Bool("tls", useTLS))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(context.Background())
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 先断开 websocket 订阅，被劫持的连接不受 http.Server.Shutdown 管理
	if s.eventHandler != nil {
		s.eventHandler.Close()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 停止联邦工作池
	if s.workers != nil {
		s.workers.Close()
		st := s.workers.Stats()
		s.logger.Info("federation workers drained",
			zap.Int64("finished", st.Finished),
			zap.Int64("failed", st.Failed),
			zap.Int64("overflow", st.Overflow))
	}

	// 5. 关闭存储
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}

	// 6. 刷新遥测数据
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

func managementConfig(cfg config.NegotiationConfig) agreement.ManagementConfig {
	mc := agreement.DefaultManagementConfig()
	mc.BaseURL = cfg.ManagementURL
	mc.APIKey = cfg.APIKey
	if cfg.Protocol != "" {
		mc.Protocol = cfg.Protocol
	}
	if cfg.RequestTimeout > 0 {
		mc.Timeout = cfg.RequestTimeout
	}
	return mc
}

func controllerConfig(cfg config.NegotiationConfig) agreement.Config {
	return agreement.Config{
		Timeout:         cfg.Timeout,
		PollInterval:    cfg.PollInterval,
		CallbackAddress: cfg.CallbackAddress,
	}
}

func cacheConfig(cfg config.RedisConfig) cache.Config {
	cc := cache.DefaultConfig()
	cc.Addr = cfg.Addr
	cc.Password = cfg.Password
	cc.DB = cfg.DB
	cc.TLSEnabled = cfg.TLS
	if cfg.KeyPrefix != "" {
		cc.KeyPrefix = cfg.KeyPrefix
	}
	if cfg.PoolSize > 0 {
		cc.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		cc.MinIdleConns = cfg.MinIdleConns
	}
	return cc
}
