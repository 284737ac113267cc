package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IshaanRSharma/chatdigest/internal/tlsutil"
	"github.com/IshaanRSharma/chatdigest/types"
	"go.uber.org/zap"
)

// OllamaConfig 配置本地 Ollama 摘要后端。
type OllamaConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	TopP        float64       `yaml:"top_p" json:"top_p"`
	NumPredict  int           `yaml:"num_predict" json:"num_predict"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	InputLimit  int           `yaml:"input_limit" json:"input_limit"`
}

// DefaultOllamaConfig returns the settings used for chunk summaries.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:     "http://localhost:11434",
		Model:       "llama3.1:8b",
		Temperature: 0.1,
		TopP:        0.8,
		NumPredict:  2048,
		Timeout:     120 * time.Second,
		InputLimit:  4000,
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options"`
	Stream  bool          `json:"stream"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaSummarizer 调用 POST {base}/api/generate（非流式）。
type OllamaSummarizer struct {
	cfg    OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaSummarizer creates an Ollama backend.
func NewOllamaSummarizer(cfg OllamaConfig, logger *zap.Logger) *OllamaSummarizer {
	def := DefaultOllamaConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.NumPredict <= 0 {
		cfg.NumPredict = def.NumPredict
	}
	if cfg.InputLimit <= 0 {
		cfg.InputLimit = def.InputLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OllamaSummarizer{
		cfg:    cfg,
		client: tlsutil.HTTPClient(tlsutil.ClientConfig{Timeout: cfg.Timeout}),
		logger: logger.With(zap.String("component", "ollama_summarizer")),
	}
}

// Info implements Describer.
func (s *OllamaSummarizer) Info() Info {
	return Info{Backend: "ollama", Model: s.cfg.Model, InputLimit: s.cfg.InputLimit}
}

// Summarize implements Summarizer.
func (s *OllamaSummarizer) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  s.cfg.Model,
		Prompt: Prompt(chunkText, instructions),
		Options: ollamaOptions{
			Temperature: s.cfg.Temperature,
			TopP:        s.cfg.TopP,
			NumPredict:  s.cfg.NumPredict,
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "ollama request failed").
			WithCause(err).
			WithRetryable(ctx.Err() == nil).
			WithBackend("ollama")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "read ollama response").
			WithCause(err).
			WithRetryable(true).
			WithBackend("ollama")
	}
	if resp.StatusCode != http.StatusOK {
		return "", upstreamError("ollama", resp.StatusCode, string(data))
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode ollama response").
			WithCause(err).
			WithBackend("ollama")
	}
	if out.Error != "" {
		return "", types.NewError(types.ErrUpstreamError, out.Error).WithBackend("ollama")
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptySummary
	}

	s.logger.Debug("chunk summarized",
		zap.Int("input_chars", len(chunkText)),
		zap.Int("output_chars", len(text)),
		zap.Duration("latency", time.Since(start)))
	return text, nil
}
