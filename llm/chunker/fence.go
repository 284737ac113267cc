package chunker

import "strings"

// block is a contiguous span of message content: one fenced code block or one prose paragraph.
// Concatenating every block of a message reproduces the content byte for byte.
type block struct {
	text string
	code bool
}

// splitBlocks 将消息内容切分为围栏代码块与段落。
// 围栏为 ``` 或 ~~~（至少 3 个）；未闭合的围栏延续到内容末尾。
func splitBlocks(content string) []block {
	var blocks []block
	var prose strings.Builder

	flushProse := func() {
		if prose.Len() == 0 {
			return
		}
		for _, p := range strings.SplitAfter(prose.String(), "\n\n") {
			if p != "" {
				blocks = append(blocks, block{text: p})
			}
		}
		prose.Reset()
	}

	lines := strings.SplitAfter(content, "\n")
	for i := 0; i < len(lines); i++ {
		fenceChar, fenceLen, ok := openingFence(lines[i])
		if !ok {
			prose.WriteString(lines[i])
			continue
		}
		flushProse()

		var code strings.Builder
		code.WriteString(lines[i])
		for i+1 < len(lines) {
			i++
			code.WriteString(lines[i])
			if closingFence(lines[i], fenceChar, fenceLen) {
				break
			}
		}
		blocks = append(blocks, block{text: code.String(), code: true})
	}
	flushProse()

	if len(blocks) == 0 {
		blocks = append(blocks, block{})
	}
	return blocks
}

// CodeBlocks returns the fenced code blocks of content, fences included.
func CodeBlocks(content string) []string {
	var out []string
	for _, b := range splitBlocks(content) {
		if b.code {
			out = append(out, b.text)
		}
	}
	return out
}

// OpenFence returns the opening fence line left unclosed at the end of content, or "".
// The returned line always ends with a line break.
func OpenFence(content string) string {
	var (
		open string
		ch   byte
		n    int
	)
	for _, line := range strings.SplitAfter(content, "\n") {
		if open == "" {
			if c, l, ok := openingFence(line); ok {
				open, ch, n = line, c, l
			}
			continue
		}
		if closingFence(line, ch, n) {
			open = ""
		}
	}
	if open != "" && !strings.HasSuffix(open, "\n") {
		open += "\n"
	}
	return open
}

func openingFence(line string) (byte, int, bool) {
	s, ok := trimIndent(line)
	if !ok || len(s) < 3 {
		return 0, 0, false
	}
	ch := s[0]
	if ch != '`' && ch != '~' {
		return 0, 0, false
	}
	n := fenceRun(s, ch)
	if n < 3 {
		return 0, 0, false
	}
	// 反引号围栏的 info string 不能包含反引号
	if ch == '`' && strings.IndexByte(s[n:], '`') >= 0 {
		return 0, 0, false
	}
	return ch, n, true
}

func closingFence(line string, ch byte, minLen int) bool {
	s, ok := trimIndent(line)
	if !ok {
		return false
	}
	n := fenceRun(s, ch)
	if n < minLen {
		return false
	}
	return strings.TrimSpace(s[n:]) == ""
}

// trimIndent strips the line break and up to three leading spaces.
func trimIndent(line string) (string, bool) {
	s := strings.TrimRight(line, "\r\n")
	indent := 0
	for indent < len(s) && s[indent] == ' ' {
		indent++
	}
	if indent > 3 {
		return "", false
	}
	return s[indent:], true
}

func fenceRun(s string, ch byte) int {
	n := 0
	for n < len(s) && s[n] == ch {
		n++
	}
	return n
}
