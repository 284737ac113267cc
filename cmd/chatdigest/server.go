package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/api/handlers"
	"github.com/IshaanRSharma/chatdigest/config"
	"github.com/IshaanRSharma/chatdigest/internal/metrics"
	"github.com/IshaanRSharma/chatdigest/internal/server"
	"github.com/IshaanRSharma/chatdigest/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ChatDigest 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 压缩流水线
	components *components

	// Handlers
	healthHandler   *handlers.HealthHandler
	compressHandler *handlers.CompressHandler
	parseHandler    *handlers.ParseHandler
	modelsHandler   *handlers.ModelsHandler

	// 指标收集器
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}, nil
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 遥测（失败不阻止启动）
	providers, err := telemetry.Init(context.Background(), s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	// 2. 初始化指标收集器
	if s.metricsCollector == nil {
		s.metricsCollector = metrics.NewCollector("chatdigest", s.logger)
	}

	// 3. 装配压缩流水线与 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if s.cfg.Server.MetricsPort != 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Bool("auth", s.cfg.Auth.Enabled()),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	if s.components == nil {
		c, err := buildComponents(s.cfg, s.metricsCollector, s.logger)
		if err != nil {
			return err
		}
		s.components = c
	}
	c := s.components

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewTokenizerHealthCheck(c.registry))
	if c.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewCacheHealthCheck(c.cache.Ping))
	}

	s.compressHandler = handlers.NewCompressHandler(c.compressor, c.summarizer, s.logger)
	s.parseHandler = handlers.NewParseHandler(c.accountant, s.logger)
	s.modelsHandler = handlers.NewModelsHandler(c.compressor, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由；旧路径作为别名保留
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version))

	// 压缩
	mux.HandleFunc("POST /api/v1/compress", s.compressHandler.HandleCompress)
	mux.HandleFunc("POST /api/compress-context", s.compressHandler.HandleCompress)

	// 解析、上传与下载
	mux.HandleFunc("POST /api/v1/parse", s.parseHandler.HandleParse)
	mux.HandleFunc("POST /api/parse", s.parseHandler.HandleParse)
	mux.HandleFunc("POST /api/upload", s.parseHandler.HandleParse)
	mux.HandleFunc("POST /api/download", s.parseHandler.HandleDownload)

	// 模型
	mux.HandleFunc("GET /api/v1/models", s.modelsHandler.HandleList)
	mux.HandleFunc("GET /api/llm-types", s.modelsHandler.HandleLLMTypes)

	return mux
}

// handler 构建带中间件链的根 Handler
func (s *Server) handler(ctx context.Context) http.Handler {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		BodyLimit(s.cfg.Server.MaxBodyBytes),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.cfg.Auth.Enabled() {
		middlewares = append(middlewares, Authenticate(s.cfg.Auth, skipAuthPaths, s.logger))
	}

	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}

	s.httpManager = server.NewManager(s.handler(rateLimiterCtx), serverConfig, s.logger)

	// HTTP 排空之后再释放下游资源
	s.httpManager.OnShutdown(func(context.Context) error {
		rateLimiterCancel()
		return nil
	})
	s.httpManager.OnShutdown(s.components.closeCache)
	if s.telemetry != nil {
		s.httpManager.OnShutdown(s.telemetry.Shutdown)
	}

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
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
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或 API 服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.httpManager.Run(ctx)
	s.Shutdown()
	return err
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器（已关闭时为空操作，钩子负责限流器、缓存与遥测）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
