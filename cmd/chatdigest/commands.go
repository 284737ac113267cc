package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/api"
	"github.com/IshaanRSharma/chatdigest/api/handlers"
	"github.com/IshaanRSharma/chatdigest/internal/metrics"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/IshaanRSharma/chatdigest/transcript"
)

// =============================================================================
// 🗜️ 本地命令：compress / parse / models
// =============================================================================

// exitCompressionFailed 是压缩失败（已输出原文）时的退出码
const exitCompressionFailed = 2

// cliFlags 是本地命令共用的参数
type cliFlags struct {
	configPath string
	file       string
	format     string
	verbose    bool
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to config file")
	fs.StringVarP(&f.file, "file", "f", "-", `Transcript file, "-" reads stdin`)
	fs.StringVar(&f.format, "format", "", "Force input format (json, said, markdown, labeled, generic, plain)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log progress to stderr")
}

// cliCollector 在私有 Registry 上创建收集器，避免污染默认 Registry
func cliCollector(logger *zap.Logger) *metrics.Collector {
	return metrics.NewCollectorWith(prometheus.NewRegistry(), "chatdigest", logger)
}

// readInput 读取文件或 stdin，并拒绝非 UTF-8 内容
func readInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if !utf8.Valid(data) {
		return "", errors.New("transcript is not valid UTF-8 text")
	}
	return string(data), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// -----------------------------------------------------------------------------
// compress
// -----------------------------------------------------------------------------

func runCompress(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		flags cliFlags
		req   api.CompressRequest
	)
	fs := pflag.NewFlagSet("compress", pflag.ContinueOnError)
	flags.register(fs)
	fs.StringVarP(&req.TargetLLM, "model", "m", "", "Target model (required)")
	fs.Float64Var(&req.BudgetFraction, "fraction", 0, "Budget fraction of the model's context window")
	fs.IntVar(&req.MaxTokens, "max-tokens", 0, "Explicit token budget, overrides --fraction")
	fs.BoolVar(&req.IncludePrompt, "prompt", false, "Include the continuation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg.Log, flags.verbose)
	defer func() { _ = logger.Sync() }()

	content, err := readInput(flags.file, stdin)
	if err != nil {
		return err
	}
	req.ChatContent = content
	req.Format = flags.format

	c, err := buildComponents(cfg, cliCollector(logger), logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return compressTranscript(ctx, c.compressor, c.summarizer, &req, stdout)
}

// compressTranscript 与 HTTP 接口输出相同的 JSON；压缩失败时输出带原文的失败载荷并以退出码 2 结束
func compressTranscript(ctx context.Context, compressor *compress.Compressor, s summarizer.Summarizer, req *api.CompressRequest, out io.Writer) error {
	if err := handlers.ValidateCompressRequest(req); err != nil {
		return err
	}

	parsed, err := transcript.ParseAs(req.ChatContent, transcript.Format(req.Format))
	if err != nil {
		return err
	}

	res, err := compressor.Compress(ctx, parsed.Transcript, req.TargetLLM, handlers.CompressOptions(req)...)
	if err != nil {
		var cfe *compress.CompressionFailedError
		if !errors.As(err, &cfe) {
			return err
		}
		if werr := writeJSON(out, handlers.CompressionFailedResponseFrom(cfe, req.ChatContent)); werr != nil {
			return werr
		}
		return exitCodeError{code: exitCompressionFailed}
	}

	return writeJSON(out, handlers.CompressResponseFrom(req, parsed, res, summarizer.Describe(s).Backend))
}

// -----------------------------------------------------------------------------
// parse
// -----------------------------------------------------------------------------

func runParse(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		flags cliFlags
		model string
	)
	fs := pflag.NewFlagSet("parse", pflag.ContinueOnError)
	flags.register(fs)
	fs.StringVarP(&model, "model", "m", "", "Model whose tokenizer counts the transcript")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg.Log, flags.verbose)
	defer func() { _ = logger.Sync() }()

	content, err := readInput(flags.file, stdin)
	if err != nil {
		return err
	}

	_, accountant, err := newAccountant(cfg, cliCollector(logger), logger)
	if err != nil {
		return err
	}
	return parseTranscript(accountant, content, transcript.Format(flags.format), model, stdout)
}

// parseTranscript 输出与 /api/v1/parse 的 data 字段相同的 JSON
func parseTranscript(accountant *tokenizer.Accountant, content string, format transcript.Format, model string, out io.Writer) error {
	if format != "" && !format.Valid() {
		return fmt.Errorf("unsupported format %q", format)
	}
	parsed, err := transcript.ParseAs(content, format)
	if err != nil {
		return err
	}
	count := accountant.CountFor(content, model)
	return writeJSON(out, api.ParseResponse{
		Content:        content,
		Messages:       api.MessagesFromTranscript(parsed.Transcript),
		MessageCount:   len(parsed.Transcript),
		TokenCount:     count.Tokens,
		Exact:          count.Exact,
		FormatDetected: string(parsed.Format),
	})
}

// -----------------------------------------------------------------------------
// models
// -----------------------------------------------------------------------------

func runModels(args []string, stdout io.Writer) error {
	var configPath string
	fs := pflag.NewFlagSet("models", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "", "Path to config file")
	fraction := fs.Float64("fraction", 0, "Budget fraction used for the budget_tokens column")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if *fraction > 0 {
		cfg.Compression.BudgetFraction = *fraction
	}
	logger := cliLogger(cfg.Log, false)
	defer func() { _ = logger.Sync() }()

	_, accountant, err := newAccountant(cfg, cliCollector(logger), logger)
	if err != nil {
		return err
	}
	compressor := compress.New(accountant, summarizer.Identity, cfg.Compression.CompressConfig(), compress.Deps{Logger: logger})
	return writeJSON(stdout, handlers.NewModelsHandler(compressor, logger).Models())
}
