package transcript

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanRSharma/chatdigest/types"
)

// Format 是识别出的对话导出格式。
type Format string

const (
	FormatJSON     Format = "json"
	FormatSaid     Format = "said"
	FormatMarkdown Format = "markdown"
	FormatLabeled  Format = "labeled"
	FormatGeneric  Format = "generic"
	FormatPlain    Format = "plain"
)

// Formats lists the supported formats in detection order.
func Formats() []Format {
	return []Format{FormatJSON, FormatSaid, FormatMarkdown, FormatLabeled, FormatGeneric, FormatPlain}
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	for _, known := range Formats() {
		if f == known {
			return true
		}
	}
	return false
}

// Parsed 是解析结果。
type Parsed struct {
	Transcript types.Transcript `json:"messages"`
	Format     Format           `json:"format_detected"`
}

var (
	saidPattern    = regexp.MustCompile(`(?i)\b(you|chatgpt|claude|gemini|grok|bard|ai|assistant)\s+said:`)
	headerPattern  = regexp.MustCompile(`^#{1,6}\s+([A-Za-z]+)\s*$`)
	labeledPattern = regexp.MustCompile(`(?i)^(user|human|person|customer|me|ai|bot|assistant|system|chatgpt|claude|gemini|model|tool):[ \t]?(.*)$`)
)

// roleAliases 把各种导出中的说话人名称归一到四种角色。
var roleAliases = map[string]types.Role{
	"user":      types.RoleUser,
	"human":     types.RoleUser,
	"you":       types.RoleUser,
	"me":        types.RoleUser,
	"person":    types.RoleUser,
	"customer":  types.RoleUser,
	"assistant": types.RoleAssistant,
	"ai":        types.RoleAssistant,
	"bot":       types.RoleAssistant,
	"model":     types.RoleAssistant,
	"chatgpt":   types.RoleAssistant,
	"gpt":       types.RoleAssistant,
	"claude":    types.RoleAssistant,
	"gemini":    types.RoleAssistant,
	"grok":      types.RoleAssistant,
	"bard":      types.RoleAssistant,
	"system":    types.RoleSystem,
	"developer": types.RoleSystem,
	"tool":      types.RoleTool,
	"function":  types.RoleTool,
}

// NormalizeRole maps a speaker name to a role. Unknown speakers become user.
func NormalizeRole(name string) types.Role {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return r
	}
	return types.RoleUser
}

func knownSpeaker(name string) bool {
	_, ok := roleAliases[strings.ToLower(name)]
	return ok
}

// Detect 按 json → said → markdown → labeled → generic → plain 的顺序识别格式。
// generic 要求措辞启发式至少推断出两轮对话。
func Detect(content string) Format {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}
	if saidPattern.MatchString(content) {
		return FormatSaid
	}
	for _, line := range strings.Split(content, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil && knownSpeaker(m[1]) {
			return FormatMarkdown
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if labeledPattern.MatchString(strings.TrimSpace(line)) {
			return FormatLabeled
		}
	}
	if len(parseGeneric(content)) >= 2 {
		return FormatGeneric
	}
	return FormatPlain
}

// Parse 自动识别格式并解析为对话，序号按出现顺序分配。
func Parse(content string) (Parsed, error) {
	return ParseAs(content, "")
}

// ParseAs parses content with the given format; an empty format means auto-detect.
// 自动识别出的格式解析失败时退化为 plain，显式指定的格式解析失败则返回 ErrParseFailed。
func ParseAs(content string, format Format) (Parsed, error) {
	if strings.TrimSpace(content) == "" {
		return Parsed{}, types.NewError(types.ErrInvalidRequest, "chat content is empty").WithHTTPStatus(400)
	}
	auto := format == ""
	if auto {
		format = Detect(content)
	}

	var (
		msgs []types.Message
		err  error
	)
	switch format {
	case FormatJSON:
		msgs, err = parseJSON(content)
	case FormatSaid:
		msgs = parseSaid(content)
	case FormatMarkdown:
		msgs = parseMarkdown(content)
	case FormatLabeled:
		msgs = parseLabeled(content)
	case FormatGeneric:
		msgs = parseGeneric(content)
	case FormatPlain:
		msgs = parsePlain(content)
	default:
		return Parsed{}, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown format %q", format)).WithHTTPStatus(400)
	}
	if err != nil && auto {
		format, msgs, err = FormatPlain, parsePlain(content), nil
	}
	if err != nil {
		return Parsed{}, types.NewError(types.ErrParseFailed, "parse "+string(format)+" transcript").
			WithCause(err).
			WithHTTPStatus(400)
	}
	if len(msgs) == 0 {
		msgs = parsePlain(content)
	}
	return Parsed{Transcript: types.NewTranscript(msgs...), Format: format}, nil
}

// =============================================================================
// 🎯 各格式解析
// =============================================================================

type jsonMessage struct {
	Role    string `json:"role"`
	Speaker string `json:"speaker"`
	Content any    `json:"content"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (m jsonMessage) role() string {
	if m.Role != "" {
		return m.Role
	}
	return m.Speaker
}

// text 支持字符串 content，以及 OpenAI/Anthropic 风格的 [{type:text,text:...}] 数组。
func (m jsonMessage) text() string {
	switch c := m.Content.(type) {
	case string:
		if c != "" {
			return c
		}
	case []any:
		var parts []string
		for _, p := range c {
			if obj, ok := p.(map[string]any); ok {
				if s, ok := obj["text"].(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Message
}

var listFields = []string{"messages", "conversation", "chat", "dialogue", "transcript"}

func parseJSON(content string) ([]types.Message, error) {
	data := []byte(strings.TrimSpace(content))

	var list []jsonMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return convertJSON(list), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for _, field := range listFields {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			continue
		}
		if msgs := convertJSON(list); len(msgs) > 0 {
			return msgs, nil
		}
	}
	return nil, nil
}

func convertJSON(list []jsonMessage) []types.Message {
	msgs := make([]types.Message, 0, len(list))
	for _, m := range list {
		text := m.text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		msgs = append(msgs, types.Message{Role: NormalizeRole(m.role()), Content: text})
	}
	return msgs
}

// parseSaid 处理 "You said:" / "ChatGPT said:" 形式的网页导出。
// 第一个标记之前的文本视为用户的第一条消息。
func parseSaid(content string) []types.Message {
	locs := saidPattern.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}
	var msgs []types.Message
	if lead := strings.TrimSpace(content[:locs[0][0]]); lead != "" {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: lead})
	}
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(content[loc[1]:end])
		if text == "" {
			continue
		}
		msgs = append(msgs, types.Message{Role: NormalizeRole(content[loc[2]:loc[3]]), Content: text})
	}
	return msgs
}

// parseMarkdown 按 "# User" / "# Assistant" 等标题分段，未知标题的内容归入当前段。
func parseMarkdown(content string) []types.Message {
	var (
		msgs    []types.Message
		role    types.Role
		started bool
		body    []string
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(body, "\n")); text != "" {
			r := role
			if !started {
				r = types.RoleUser
			}
			msgs = append(msgs, types.Message{Role: r, Content: text})
		}
		body = body[:0]
	}
	for _, line := range strings.Split(content, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil && knownSpeaker(m[1]) {
			flush()
			role, started = NormalizeRole(m[1]), true
			continue
		}
		body = append(body, line)
	}
	flush()
	return msgs
}

// parseLabeled 处理 "User: ..." / "Assistant: ..." 形式，无标签的行接在当前消息后。
func parseLabeled(content string) []types.Message {
	var (
		msgs    []types.Message
		role    = types.RoleUser
		body    []string
		inFence bool
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(body, "\n")); text != "" {
			msgs = append(msgs, types.Message{Role: role, Content: text})
		}
		body = body[:0]
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := labeledPattern.FindStringSubmatch(trimmed); m != nil {
				flush()
				role = NormalizeRole(m[1])
				body = append(body, m[2])
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return msgs
}

var (
	assistantCue = regexp.MustCompile(`(?i)^(I'm (sorry|afraid|happy to)|As an? (AI|assistant|language model)\b|Let me (explain|show|help)\b|Here('s| is) (how|what|why|an example)\b|Certainly!|Of course!|Sure thing!|The best way to\b|Let's go step by step|Based on (my knowledge|your request|the data)\b|To summarize\b|Thank you for your question)`)
	userCue      = regexp.MustCompile(`(?i)(\?$|^(Can|Could|How|What|Why|When|Where|Is|Are|Do|Does|Will|Would|Should) |^Please |^Tell me |^I (need|want|would like|am trying to)\b|^(Write|Create|Generate|Explain|Summarize|Analyze)\b|^(Claude|ChatGPT|Gemini|Assistant|AI),)`)
)

// inferRole 根据措辞猜测说话人，助手特征优先于用户特征。
func inferRole(line string) (types.Role, bool) {
	switch {
	case assistantCue.MatchString(line):
		return types.RoleAssistant, true
	case userCue.MatchString(line):
		return types.RoleUser, true
	}
	return "", false
}

func isFenceLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// turnBreak 是表示换人发言的连续空行数。
const turnBreak = 3

// parseGeneric 处理没有说话人标签的导出，按措辞推断用户与助手的轮次。
// 代码块归属当前说话人且原样保留；连续三个空行视为换人；相邻的同角色消息合并。
func parseGeneric(content string) []types.Message {
	var (
		msgs    []types.Message
		role    = types.RoleUser
		body    []string
		inFence bool
		blanks  int
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if text == "" {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += types.MessageSeparator + text
			return
		}
		msgs = append(msgs, types.Message{Role: role, Content: text})
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if inFence {
			body = append(body, line)
			if isFenceLine(trimmed) {
				inFence = false
			}
			continue
		}
		if trimmed == "" {
			blanks++
			if blanks == turnBreak && strings.TrimSpace(strings.Join(body, "")) != "" {
				flush()
				role = otherSpeaker(role)
			}
			body = append(body, "")
			continue
		}
		blanks = 0
		if isFenceLine(trimmed) {
			inFence = true
			body = append(body, line)
			continue
		}
		if r, ok := inferRole(trimmed); ok && r != role {
			flush()
			role = r
		}
		body = append(body, trimmed)
	}
	flush()
	return msgs
}

func otherSpeaker(r types.Role) types.Role {
	if r == types.RoleAssistant {
		return types.RoleUser
	}
	return types.RoleAssistant
}

func parsePlain(content string) []types.Message {
	return []types.Message{{Role: types.RoleUser, Content: strings.TrimSpace(content)}}
}
