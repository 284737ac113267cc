// =============================================================================
// ChatDigest 主入口
// =============================================================================
// 服务与命令行入口，包含 HTTP 服务、健康检查、Prometheus 指标和本地压缩命令
//
// 使用方法:
//
//	chatdigest serve                              # 启动服务
//	chatdigest serve --config config.yaml         # 指定配置文件
//	chatdigest compress --model gpt-4o -f chat.txt  # 本地压缩，输出 JSON
//	chatdigest parse -f chat.json                 # 解析对话，输出 JSON
//	chatdigest models                             # 列出支持的目标模型
//	chatdigest health                             # 健康检查
//	chatdigest version                            # 显示版本信息
// =============================================================================

// @title ChatDigest API
// @version 1.0.0
// @description ChatDigest compresses long chat transcripts into a token budget for a target LLM's context window.
// @description
// @description ## Features
// @description - Exact token counting per model family (tiktoken) with a heuristic fallback
// @description - Role-aware chunking and bounded-parallel map-reduce summarization
// @description - Ollama and Anthropic summarizer backends with a Redis summary cache
// @description - Transcript parsing for JSON, "X said:", markdown and labeled exports

// @contact.name ChatDigest Team
// @contact.url https://github.com/IshaanRSharma/chatdigest

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/IshaanRSharma/chatdigest/config"
	"github.com/IshaanRSharma/chatdigest/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// exitCodeError 让子命令以指定退出码结束而不打印额外信息
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "compress":
		err = runCompress(os.Args[2:], os.Stdin, os.Stdout)
	case "parse":
		err = runParse(os.Args[2:], os.Stdin, os.Stdout)
	case "models":
		err = runModels(os.Args[2:], os.Stdout)
	case "version":
		printVersion()
	case "health":
		err = runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// 🔧 配置加载
// =============================================================================

// loadConfig 按 默认值 → YAML → 环境变量 的顺序加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	// 资源属性 service.version 使用构建注入的版本
	if Version != "dev" {
		telemetry.Version = Version
	}

	logger.Info("Starting ChatDigest",
		zap.String("version", telemetry.BuildVersion()),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	logger.Debug("effective config", zap.String("config", cfg.SanitizedJSON()))

	srv, err := NewServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// 等待关闭信号
	err = srv.WaitForShutdown()
	logger.Info("ChatDigest stopped")
	return err
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) error {
	fs := pflag.NewFlagSet("health", pflag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check /ready instead of /health")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Println("OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ChatDigest %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ChatDigest - chat transcript compression service

Usage:
  chatdigest <command> [options]

Commands:
  serve     Start the ChatDigest HTTP server
  compress  Compress a transcript locally and print the result as JSON
  parse     Parse a transcript and print the detected messages as JSON
  models    List supported target models and their budgets
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  -c, --config <path>   Path to configuration file (YAML)

Options for 'compress':
  -m, --model <id>      Target model (required)
  -f, --file <path>     Transcript file, stdin when omitted or "-"
      --fraction <f>    Budget fraction of the model's context window
      --max-tokens <n>  Explicit token budget, overrides --fraction
      --format <name>   Force input format (json, said, markdown, labeled, generic, plain)
      --prompt          Include the continuation prompt
  -c, --config <path>   Path to configuration file (YAML)

Examples:
  chatdigest serve
  chatdigest serve --config /etc/chatdigest/config.yaml
  chatdigest compress --model gpt-4o --file chat.txt --prompt
  cat export.json | chatdigest parse --format json
  chatdigest health --addr http://localhost:8080
  chatdigest version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
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
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// cliLogger 用于本地命令：日志写到 stderr，stdout 只输出结果
func cliLogger(cfg config.LogConfig, verbose bool) *zap.Logger {
	cfg.OutputPaths = []string{"stderr"}
	cfg.Format = "console"
	if !verbose {
		cfg.Level = "warn"
	}
	return initLogger(cfg)
}
