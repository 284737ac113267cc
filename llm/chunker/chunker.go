package chunker

import (
	"strings"

	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/IshaanRSharma/chatdigest/types"
	"go.uber.org/zap"
)

// Segment 是一条完整消息或其中的一个片段。
// Part 为 0 表示消息的第一个片段（渲染时带角色前缀）；Continues 表示后面还有同一消息的片段。
type Segment struct {
	Ordinal   int        `json:"ordinal"`
	Role      types.Role `json:"role"`
	Part      int        `json:"part"`
	Content   string     `json:"content"`
	Continues bool       `json:"continues"`
	// Oversized 标记超过块上限但保持完整的代码：不超过硬上限的代码块，或超长代码块中的单行。
	Oversized bool `json:"oversized,omitempty"`
}

// Render returns the segment as it appears in serialized text.
func (s Segment) Render() string {
	if s.Part == 0 {
		return s.Role.Label() + s.Content
	}
	return s.Content
}

// Chunk 是一组连续片段，Tokens ≤ Cap。
type Chunk struct {
	Index    int       `json:"index"`
	Segments []Segment `json:"segments"`
	Tokens   int       `json:"tokens"`
	Cap      int       `json:"cap"`
	// Oversize 表示该块只含一个超过请求上限的不可拆分片段，此时 Cap = Tokens。
	Oversize bool `json:"oversize,omitempty"`
}

// Text 返回块的序列化文本。同一消息的片段直接拼接，不同消息之间用空行分隔。
func (c Chunk) Text() string {
	return renderSegments(c.Segments)
}

// FirstOrdinal returns the ordinal of the first message the chunk touches.
func (c Chunk) FirstOrdinal() int {
	if len(c.Segments) == 0 {
		return -1
	}
	return c.Segments[0].Ordinal
}

// LastOrdinal returns the ordinal of the last message the chunk touches.
func (c Chunk) LastOrdinal() int {
	if len(c.Segments) == 0 {
		return -1
	}
	return c.Segments[len(c.Segments)-1].Ordinal
}

// Roles returns the distinct roles in the chunk, in order of first appearance.
func (c Chunk) Roles() []types.Role {
	seen := make(map[types.Role]bool, 4)
	var out []types.Role
	for _, s := range c.Segments {
		if !seen[s.Role] {
			seen[s.Role] = true
			out = append(out, s.Role)
		}
	}
	return out
}

// ContinuesPrevious reports whether the chunk starts in the middle of a message.
func (c Chunk) ContinuesPrevious() bool {
	return len(c.Segments) > 0 && c.Segments[0].Part > 0
}

// ContinuesNext reports whether the chunk ends in the middle of a message.
func (c Chunk) ContinuesNext() bool {
	return len(c.Segments) > 0 && c.Segments[len(c.Segments)-1].Continues
}

func renderSegments(segs []Segment) string {
	var sb strings.Builder
	for i, s := range segs {
		if i > 0 && s.Part == 0 {
			sb.WriteString(types.MessageSeparator)
		}
		sb.WriteString(s.Render())
	}
	return sb.String()
}

// Chunker 按 token 上限将对话切分为有序的块。
type Chunker struct {
	hardCap       int
	hardCapFactor int
	logger        *zap.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithHardCap sets an absolute ceiling above which even fenced code blocks are split.
func WithHardCap(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.hardCap = tokens
		}
	}
}

// WithHardCapFactor sets the ceiling as a multiple of the per-chunk cap. Default 2.
func WithHardCapFactor(factor int) Option {
	return func(c *Chunker) {
		if factor >= 1 {
			c.hardCapFactor = factor
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		hardCapFactor: 2,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "chunker"))
	return c
}

// Split 使用默认配置切分对话。
func Split(t types.Transcript, maxTokensPerChunk int, h *tokenizer.Handle) []Chunk {
	return New().Split(t, maxTokensPerChunk, h)
}

// Split 贪心地累积完整消息，直到再加一条会超过上限。
// 超长消息在段落、行、rune 边界上拆分；围栏代码块不拆分，
// 除非其大小超过硬上限（此时只在行边界拆分，超过上限的单行代码整行成块）。
// 超过上限但未超过硬上限的代码块单独成块。
func (c *Chunker) Split(t types.Transcript, maxTokensPerChunk int, h *tokenizer.Handle) []Chunk {
	if len(t) == 0 {
		return []Chunk{}
	}
	limit := maxTokensPerChunk
	if limit < 1 {
		limit = 1
	}
	hardCap := c.hardCap
	if hardCap <= 0 {
		hardCap = limit * c.hardCapFactor
	}
	if hardCap < limit {
		hardCap = limit
	}

	var segs []Segment
	for _, m := range t {
		segs = append(segs, c.segmentsFor(m, limit, hardCap, h)...)
	}

	chunks := make([]Chunk, 0, len(segs))
	var cur []Segment
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		ch := Chunk{Index: len(chunks), Segments: cur, Tokens: curTokens, Cap: limit}
		if curTokens > limit {
			ch.Cap = curTokens
			ch.Oversize = true
		}
		chunks = append(chunks, ch)
		cur, curTokens = nil, 0
	}

	for _, s := range segs {
		if s.Oversized {
			flush()
			cur = []Segment{s}
			curTokens = tokenizer.Tokens(renderSegments(cur), h)
			flush()
			continue
		}
		candidate := append(cur[:len(cur):len(cur)], s)
		n := tokenizer.Tokens(renderSegments(candidate), h)
		if n <= limit || len(cur) == 0 {
			cur, curTokens = candidate, n
			continue
		}
		flush()
		cur = []Segment{s}
		curTokens = tokenizer.Tokens(renderSegments(cur), h)
	}
	flush()

	c.logger.Debug("transcript split",
		zap.Int("messages", len(t)),
		zap.Int("chunks", len(chunks)),
		zap.Int("cap", limit))
	return chunks
}

// segmentsFor returns one segment for a message that fits, or its pieces otherwise.
func (c *Chunker) segmentsFor(m types.Message, limit, hardCap int, h *tokenizer.Handle) []Segment {
	if tokenizer.Tokens(m.Render(), h) <= limit {
		return []Segment{{Ordinal: m.Ordinal, Role: m.Role, Content: m.Content}}
	}

	label := m.Role.Label()
	var segs []Segment
	add := func(text string, oversized bool) {
		segs = append(segs, Segment{
			Ordinal:   m.Ordinal,
			Role:      m.Role,
			Part:      len(segs),
			Content:   text,
			Oversized: oversized,
		})
	}
	lead := func() string {
		if len(segs) == 0 {
			return label
		}
		return ""
	}

	for _, b := range splitBlocks(m.Content) {
		n := tokenizer.Tokens(lead()+b.text, h)
		switch {
		case n <= limit:
			add(b.text, false)
		case b.code && n <= hardCap:
			add(b.text, true)
		default:
			for _, line := range strings.SplitAfter(b.text, "\n") {
				if line == "" {
					continue
				}
				if tokenizer.Tokens(lead()+line, h) <= limit {
					add(line, false)
					continue
				}
				// 代码行只在行边界拆分，超长的单行整行成块
				if b.code {
					add(line, true)
					continue
				}
				for rest := line; rest != ""; {
					off := tokenizer.FitPrefix(lead(), rest, limit, h)
					add(rest[:off], false)
					rest = rest[off:]
				}
			}
		}
	}

	if len(segs) == 0 {
		return []Segment{{Ordinal: m.Ordinal, Role: m.Role, Content: m.Content}}
	}
	for i := range segs[:len(segs)-1] {
		segs[i].Continues = true
	}
	return segs
}
