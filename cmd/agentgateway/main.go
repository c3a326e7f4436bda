// =============================================================================
// AgentGateway 主入口
// =============================================================================
// 联邦查询网关的服务入口，包含协商 API、回调、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentgateway serve                                  # 启动服务
//	agentgateway serve --config config.yaml             # 指定配置文件
//	agentgateway negotiate --peer <dsp> --asset <urn>   # 单次协商并输出端点
//	agentgateway version                                # 显示版本信息
//	agentgateway health                                 # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/api"
	"github.com/catenax-ng/product-agents-edc-sub000/api/handlers"
	"github.com/catenax-ng/product-agents-edc-sub000/config"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/server"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "negotiate":
		runNegotiate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并验证配置，失败时退出
func loadConfig(path string) *config.Config {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AgentGateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		srv.Shutdown()
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()

	logger.Info("AgentGateway stopped")
}

// =============================================================================
// 🤝 negotiate 命令
// =============================================================================

// runNegotiate 在本地回调端口上等待端点数据，完成一次协商后退出
func runNegotiate(args []string) {
	fs := flag.NewFlagSet("negotiate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	peer := fs.String("peer", "", "Peer connector protocol address (defaults to negotiation.default_peer)")
	asset := fs.String("asset", "", "Asset id to negotiate, e.g. urn:example:Graph1")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *peer == "" {
		*peer = cfg.Negotiation.DefaultPeer
	}
	if *peer == "" || !agreement.IsAsset(*asset) {
		fmt.Fprintln(os.Stderr, "negotiate requires --peer and an urn --asset")
		os.Exit(2)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	dm := agreement.NewHTTPManagement(managementConfig(cfg.Negotiation), logger)
	ctrl := agreement.NewController(dm, controllerConfig(cfg.Negotiation), logger)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, handlers.NewCallbackHandler(ctrl, logger).HandleEndpointDataReference)
	callbackServer := server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	if err := callbackServer.Start(); err != nil {
		logger.Fatal("Failed to start callback listener", zap.Error(err))
	}
	defer callbackServer.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Negotiation.Timeout+cfg.Negotiation.RequestTimeout)
	defer cancel()

	ref, err := ctrl.Negotiate(ctx, *peer, *asset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Negotiation failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(api.NewEndpointResponse(ref))
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentGateway %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentGateway - federated query gateway for dataspace agents

Usage:
  agentgateway <command> [options]

Commands:
  serve      Start the gateway server
  negotiate  Negotiate one asset and print its (redacted) endpoint
  version    Show version information
  health     Check server health
  help       Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'negotiate':
  --config <path>   Path to configuration file (YAML)
  --peer <addr>     Peer connector protocol address
  --asset <urn>     Asset id

Environment variables use the AGENTGATEWAY_ prefix, e.g.
  AGENTGATEWAY_NEGOTIATION_MANAGEMENT_URL=http://connector:8181/management

Examples:
  agentgateway serve --config /etc/agentgateway/config.yaml
  agentgateway negotiate --peer https://provider/api/v1/dsp --asset urn:example:Graph1
  agentgateway health --addr http://localhost:8080
  agentgateway version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
