package compress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/IshaanRSharma/chatdigest/llm/chunker"
	"github.com/IshaanRSharma/chatdigest/llm/retry"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/IshaanRSharma/chatdigest/llm/compress"

// Outcome labels reported to the Recorder.
const (
	OutcomePassThrough = "passthrough"
	OutcomeCompressed  = "compressed"
	OutcomeOverBudget  = "over_budget"
	OutcomeFailed      = "failed"
)

// TruncationMarker 追加在截断兜底的块末尾。
const TruncationMarker = "\n[... truncated ...]"

// promptSlack 覆盖指令中随块位置变化的部分（话题摘录、首尾提示）。
const promptSlack = 64

// Recorder 观察压缩结果，由 internal/metrics.Collector 实现。
type Recorder interface {
	RecordCompression(model, outcome string, duration time.Duration, originalTokens, compressedTokens, passes int)
	RecordTruncation(model string)
}

// Deps are optional collaborators for New.
type Deps struct {
	Recorder Recorder
	Logger   *zap.Logger
}

// Compressor 是压缩编排器：计数 → 直通或切块 → 有界并发摘要 → 按序重组 → 复核。
// Compressor 无请求间可变状态，可并发使用。
type Compressor struct {
	accountant *tokenizer.Accountant
	summarizer summarizer.Summarizer
	cfg        Config
	recorder   Recorder
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New creates a Compressor. A nil accountant uses the process-wide tokenizer registry.
func New(accountant *tokenizer.Accountant, s summarizer.Summarizer, cfg Config, deps Deps) *Compressor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if accountant == nil {
		accountant = tokenizer.NewAccountant(nil, logger)
	}
	if s == nil {
		s = summarizer.Identity
	}
	return &Compressor{
		accountant: accountant,
		summarizer: s,
		cfg:        cfg.normalized(),
		recorder:   deps.Recorder,
		logger:     logger.With(zap.String("component", "compressor")),
		tracer:     otel.Tracer(instrumentationName),
	}
}

// Config returns the effective defaults.
func (c *Compressor) Config() Config {
	return c.cfg
}

// Accountant returns the token accountant used for budgets.
func (c *Compressor) Accountant() *tokenizer.Accountant {
	return c.accountant
}

// Budget returns the token budget for targetModel under cfg.
func (c *Compressor) Budget(targetModel string, opts ...Option) int {
	cfg := c.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	return c.budget(cfg.normalized(), targetModel)
}

func (c *Compressor) budget(cfg Config, targetModel string) int {
	if cfg.BudgetTokens > 0 {
		return cfg.BudgetTokens
	}
	b := int(math.Floor(cfg.BudgetFraction * float64(c.accountant.LimitFor(targetModel))))
	if b < 1 {
		b = 1
	}
	return b
}

// Compress 将对话压缩到目标模型的预算内。
//
// 未超预算时原样返回（Passes=0）。只有失败块占比达到 FailureThreshold 时
// 才返回 *CompressionFailedError；轮数或时间用尽时返回当前最佳结果并设置 OverBudget。
func (c *Compressor) Compress(ctx context.Context, t types.Transcript, targetModel string, opts ...Option) (*Result, error) {
	cfg := c.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.normalized()

	if err := t.Validate(); err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			return nil, te.WithHTTPStatus(http.StatusBadRequest)
		}
		return nil, err
	}

	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	ctx = types.WithTargetModel(ctx, targetModel)
	ctx, span := c.tracer.Start(ctx, "compress.Compress", trace.WithAttributes(
		attribute.String("chatdigest.run_id", runID),
		attribute.String("chatdigest.target_model", targetModel),
		attribute.Int("chatdigest.messages", len(t)),
	))
	defer span.End()

	start := time.Now()
	logger := c.logger.With(zap.String("run_id", runID), zap.String("target_model", targetModel))

	// Measuring
	targetH := c.accountant.Resolve(targetModel)
	content := t.Serialize()
	original := c.accountant.Count(content, targetH)
	budget := c.budget(cfg, targetModel)

	res := &Result{
		RunID:            runID,
		Transcript:       t,
		Content:          content,
		OriginalTokens:   original.Tokens,
		CompressedTokens: original.Tokens,
		BudgetTokens:     budget,
		Exact:            original.Exact,
	}
	span.SetAttributes(
		attribute.Int("chatdigest.original_tokens", original.Tokens),
		attribute.Int("chatdigest.budget_tokens", budget),
	)

	if original.Tokens <= budget {
		logger.Debug("transcript within budget, passing through",
			zap.Int("tokens", original.Tokens),
			zap.Int("budget", budget))
		c.record(targetModel, OutcomePassThrough, start, res)
		return res, nil
	}

	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, cfg.Deadline, types.ErrRequestDeadline)
		defer cancel()
	}

	info := summarizer.Describe(c.summarizer)
	sumH := targetH
	if info.Model != "" {
		sumH = c.accountant.Resolve(info.Model)
	}
	chunkCap := c.initialCap(cfg, info, budget, sumH)
	split := chunker.New(chunker.WithHardCapFactor(cfg.HardCapFactor), chunker.WithLogger(c.logger))
	retryer := retry.New(retryPolicy(cfg.Retry), logger)

	logger.Info("compressing transcript",
		zap.Int("original_tokens", original.Tokens),
		zap.Int("budget", budget),
		zap.String("summarizer", info.Backend),
		zap.Int("chunk_cap", chunkCap))

	current := t
	prevTokens := original.Tokens
	truncated := 0
	for pass := 1; pass <= cfg.MaxPasses; pass++ {
		// Chunking
		chunks := split.Split(current, chunkCap, sumH)
		if len(chunks) == 0 {
			break
		}

		// Summarizing
		out := c.runPass(ctx, passJob{
			cfg:     cfg,
			logger:  logger.With(zap.Int("pass", pass)),
			retryer: retryer,
			chunks:  chunks,
			pass:    pass,
			budget:  budget,
			handle:  sumH,
			model:   targetModel,
		})
		res.Passes = pass

		if out.failed > 0 && float64(out.failed)/float64(len(chunks)) >= cfg.FailureThreshold {
			if pass == 1 {
				err := &CompressionFailedError{
					Err: types.NewError(types.ErrCompressionFailed, "summarization failed for too many chunks").
						WithHTTPStatus(http.StatusBadGateway).
						WithCause(out.lastErr),
					Original:        t,
					OriginalContent: content,
					FailedChunks:    out.failed,
					TotalChunks:     len(chunks),
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, "compression failed")
				logger.Error("compression failed",
					zap.Int("failed_chunks", out.failed),
					zap.Int("total_chunks", len(chunks)),
					zap.Error(out.lastErr))
				c.record(targetModel, OutcomeFailed, start, res)
				return nil, err
			}
			logger.Warn("pass failed, keeping previous result",
				zap.Int("failed_chunks", out.failed),
				zap.Int("total_chunks", len(chunks)))
			break
		}

		// Reassembling
		digest, err := chunker.ReassembleTranscript(chunks, out.outputs)
		if err != nil {
			return nil, fmt.Errorf("reassemble pass %d: %w", pass, err)
		}
		compressed := digest.Serialize()
		count := c.accountant.Count(compressed, targetH)

		logger.Info("compression pass complete",
			zap.Int("pass", pass),
			zap.Int("chunks", len(chunks)),
			zap.Int("tokens", count.Tokens),
			zap.Int("budget", budget),
			zap.Int("failed_chunks", out.failed),
			zap.Int("degraded_chunks", out.degraded))

		// 每轮以上一轮的结果为输入，截断块数沿这条链累计
		truncated += out.failed + out.degraded
		if count.Tokens < res.CompressedTokens {
			res.FailedChunks = truncated
			res.Transcript = digest
			res.Content = compressed
			res.CompressedTokens = count.Tokens
			res.Exact = original.Exact && count.Exact
		}

		if count.Tokens <= budget {
			break
		}
		if ctx.Err() != nil {
			logger.Warn("deadline reached, returning best result", zap.Error(ctx.Err()))
			break
		}
		if count.Tokens >= prevTokens {
			logger.Warn("pass made no progress, stopping", zap.Int("tokens", count.Tokens))
			break
		}
		prevTokens = count.Tokens
		current = digest
		chunkCap = max(chunkCap/2, cfg.MinChunkTokens)
	}

	res.OverBudget = res.CompressedTokens > budget
	res.ReductionPercentage = Reduction(res.OriginalTokens, res.CompressedTokens)
	span.SetAttributes(
		attribute.Int("chatdigest.compressed_tokens", res.CompressedTokens),
		attribute.Int("chatdigest.passes", res.Passes),
		attribute.Bool("chatdigest.over_budget", res.OverBudget),
	)

	outcome := OutcomeCompressed
	if res.OverBudget {
		outcome = OutcomeOverBudget
	}
	c.record(targetModel, outcome, start, res)
	logger.Info("compression complete",
		zap.Int("original_tokens", res.OriginalTokens),
		zap.Int("compressed_tokens", res.CompressedTokens),
		zap.Float64("reduction", res.ReductionPercentage),
		zap.Int("passes", res.Passes),
		zap.Bool("over_budget", res.OverBudget),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// CompressText 把未解析的原始文本当作一条用户消息压缩。
func (c *Compressor) CompressText(ctx context.Context, content, targetModel string, opts ...Option) (*Result, error) {
	return c.Compress(ctx, types.NewTranscript(types.Message{Role: types.RoleUser, Content: content}), targetModel, opts...)
}

// initialCap 是摘要器输入上限减去指令开销，不低于 MinChunkTokens。
func (c *Compressor) initialCap(cfg Config, info summarizer.Info, budget int, h *tokenizer.Handle) int {
	limit := info.InputLimit
	if limit <= 0 {
		limit = cfg.DefaultInputLimit
	}
	sample := summarizer.Instructions(summarizer.ChunkContext{
		Index:        0,
		Total:        1,
		TargetTokens: budget,
		Continues:    true,
		Pass:         2,
	})
	overhead := c.accountant.Tokens(summarizer.Prompt("", sample), h) + promptSlack
	return max(limit-overhead, cfg.MinChunkTokens)
}

// retryPolicy 让单次调用超时与空输出也进入重试，父 ctx 结束后 retry.Do 自行停止。
func retryPolicy(p retry.Policy) retry.Policy {
	base := p.ShouldRetry
	if base == nil {
		base = retry.Retryable
	}
	p.ShouldRetry = func(err error) bool {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, summarizer.ErrEmptySummary) {
			return true
		}
		return base(err)
	}
	return p
}

func (c *Compressor) record(model, outcome string, start time.Time, res *Result) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordCompression(model, outcome, time.Since(start), res.OriginalTokens, res.CompressedTokens, res.Passes)
}

// =============================================================================
// 🎯 单轮摘要
// =============================================================================

type passJob struct {
	cfg     Config
	logger  *zap.Logger
	retryer *retry.Retryer
	chunks  []chunker.Chunk
	pass    int
	budget  int
	handle  *tokenizer.Handle
	model   string
}

type chunkStatus int

const (
	chunkOK chunkStatus = iota
	// chunkFailed 重试耗尽后截断兜底，计入失败阈值。
	chunkFailed
	// chunkDegraded 因截止时间被截断，不计入失败阈值。
	chunkDegraded
)

type passOutcome struct {
	outputs  []string
	failed   int
	degraded int
	lastErr  error
}

// runPass 以 Concurrency 为上限并发摘要各块，结果按块下标写回，与完成顺序无关。
func (c *Compressor) runPass(ctx context.Context, job passJob) passOutcome {
	ctx, span := c.tracer.Start(ctx, "compress.pass", trace.WithAttributes(
		attribute.Int("chatdigest.pass", job.pass),
		attribute.Int("chatdigest.chunks", len(job.chunks)),
	))
	defer span.End()

	shares := targetShares(job.chunks, job.budget)
	outputs := make([]string, len(job.chunks))
	statuses := make([]chunkStatus, len(job.chunks))
	errs := make([]error, len(job.chunks))

	var g errgroup.Group
	g.SetLimit(job.cfg.Concurrency)
	for i := range job.chunks {
		g.Go(func() error {
			outputs[i], statuses[i], errs[i] = c.summarizeChunk(ctx, job, i, shares[i])
			return nil
		})
	}
	_ = g.Wait()

	out := passOutcome{outputs: outputs}
	for i, st := range statuses {
		switch st {
		case chunkFailed:
			out.failed++
			out.lastErr = errs[i]
		case chunkDegraded:
			out.degraded++
		}
	}
	return out
}

func (c *Compressor) summarizeChunk(ctx context.Context, job passJob, i, share int) (string, chunkStatus, error) {
	chunk := job.chunks[i]
	text := chunk.Text()
	logger := job.logger.With(zap.Int("chunk", i))

	if err := ctx.Err(); err != nil {
		c.recordTruncation(job.model)
		return truncateChunk(text, share, job.handle), chunkDegraded, err
	}

	instructions := summarizer.Instructions(chunkContext(job.chunks, i, share, job.pass))

	ctx, span := c.tracer.Start(ctx, "compress.summarize_chunk", trace.WithAttributes(
		attribute.Int("chatdigest.chunk", i),
		attribute.Int("chatdigest.chunk_tokens", chunk.Tokens),
		attribute.Int("chatdigest.target_tokens", share),
	))
	defer span.End()

	summary, err := retry.Do(ctx, job.retryer, func(ctx context.Context, attempt int) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, job.cfg.CallTimeout)
		defer cancel()
		out, err := c.summarizer.Summarize(callCtx, text, instructions)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", summarizer.ErrEmptySummary
		}
		return out, nil
	})
	if err != nil {
		status := chunkFailed
		if ctx.Err() != nil {
			status = chunkDegraded
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarization failed")
		logger.Warn("chunk summarization failed, truncating",
			zap.Int("tokens", chunk.Tokens),
			zap.Int("target_tokens", share),
			zap.Error(err))
		c.recordTruncation(job.model)
		return truncateChunk(text, share, job.handle), status, types.NewError(types.ErrSummarizationFailed,
			fmt.Sprintf("chunk %d", i)).WithCause(err)
	}

	if job.cfg.RestoreCodeBlocks {
		if missing := missingCodeBlocks(summary, chunkCodeBlocks(job.chunks, i)); len(missing) > 0 {
			logger.Debug("restoring dropped code blocks", zap.Int("blocks", len(missing)))
			summary = restoreCodeBlocks(summary, missing)
		}
	}
	return summary, chunkOK, nil
}

func (c *Compressor) recordTruncation(model string) {
	if c.recorder != nil {
		c.recorder.RecordTruncation(model)
	}
}

// targetShares 按块的 token 数把预算按比例分给各块，每块至少 1。
func targetShares(chunks []chunker.Chunk, budget int) []int {
	total := 0
	for _, ch := range chunks {
		total += ch.Tokens
	}
	shares := make([]int, len(chunks))
	for i, ch := range chunks {
		if total > 0 {
			shares[i] = int(int64(budget) * int64(ch.Tokens) / int64(total))
		}
		if shares[i] < 1 {
			shares[i] = 1
		}
	}
	return shares
}

// truncateChunk 保留 text 在 share 内的最长前缀并加截断标记。
func truncateChunk(text string, share int, h *tokenizer.Handle) string {
	keep := share - tokenizer.Tokens(TruncationMarker, h)
	if keep < 1 {
		keep = 1
	}
	return tokenizer.Truncate(text, keep, h) + TruncationMarker
}

func chunkContext(chunks []chunker.Chunk, i, share, pass int) summarizer.ChunkContext {
	cc := summarizer.ChunkContext{
		Index:        i,
		Total:        len(chunks),
		TargetTokens: share,
		Continues:    chunks[i].ContinuesPrevious(),
		Pass:         pass,
	}
	if i > 0 {
		prev := chunks[i-1].Segments
		if len(prev) > 0 {
			last := prev[len(prev)-1]
			cc.PrevRole = roleName(last.Role)
			cc.PrevTopic = summarizer.Topic(last.Content)
		}
	}
	if i < len(chunks)-1 {
		next := chunks[i+1].Segments
		if len(next) > 0 {
			cc.NextRole = roleName(next[0].Role)
			cc.NextTopic = summarizer.Topic(next[0].Content)
		}
	}
	return cc
}

func roleName(r types.Role) string {
	if r == types.RoleDigest {
		return "summary"
	}
	return string(r)
}
