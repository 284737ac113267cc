package compress

import (
	"strings"

	"github.com/IshaanRSharma/chatdigest/llm/chunker"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// minRestorableCode 以下长度的代码片段不做补回。
const minRestorableCode = 20

// markdownParser 只用于提取 fenced code block，配置固定，可并发复用。
var markdownParser = goldmark.New()

type codeBlock struct {
	lang string
	code string
}

// extractCodeBlocks 解析 markdown 并按出现顺序返回 fenced code block。
func extractCodeBlocks(src string) []codeBlock {
	source := []byte(src)
	doc := markdownParser.Parser().Parse(text.NewReader(source))

	var blocks []codeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var sb strings.Builder
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}
		blocks = append(blocks, codeBlock{
			lang: string(fenced.Language(source)),
			code: strings.TrimRight(sb.String(), "\n"),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// chunkCodeBlocks 提取第 i 块中的代码块。同一消息的片段先拼接再解析，
// 消息开头的角色前缀不参与解析；从前一块延续进来的代码块补上其开头的围栏行，
// 因此按行拆开的超长代码块在每一块里都能被识别。
func chunkCodeBlocks(chunks []chunker.Chunk, i int) []codeBlock {
	segs := chunks[i].Segments
	var out []codeBlock
	for start := 0; start < len(segs); {
		end := start + 1
		for end < len(segs) && segs[end].Ordinal == segs[start].Ordinal {
			end++
		}
		var sb strings.Builder
		if segs[start].Part > 0 {
			sb.WriteString(chunker.OpenFence(priorContent(chunks, i, segs[start].Ordinal)))
		}
		for _, s := range segs[start:end] {
			sb.WriteString(s.Content)
		}
		if text := sb.String(); strings.Contains(text, "```") || strings.Contains(text, "~~~") {
			out = append(out, extractCodeBlocks(text)...)
		}
		start = end
	}
	return out
}

// priorContent 返回消息 ordinal 落在第 i 块之前的片段内容。
func priorContent(chunks []chunker.Chunk, i, ordinal int) string {
	var sb strings.Builder
	for _, c := range chunks[:i] {
		for _, s := range c.Segments {
			if s.Ordinal == ordinal {
				sb.WriteString(s.Content)
			}
		}
	}
	return sb.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// missingCodeBlocks 返回摘要中缺失的代码块。
// 比较忽略空白差异；多行代码只要首行或末行仍在就视为保留。
func missingCodeBlocks(summary string, blocks []codeBlock) []codeBlock {
	if len(blocks) == 0 {
		return nil
	}
	normSummary := normalizeSpace(summary)
	var missing []codeBlock
	for _, b := range blocks {
		if len(b.code) < minRestorableCode {
			continue
		}
		if strings.Contains(normSummary, normalizeSpace(b.code)) {
			continue
		}
		lines := strings.Split(b.code, "\n")
		if len(lines) > 2 {
			first := strings.TrimSpace(lines[0])
			last := strings.TrimSpace(lines[len(lines)-1])
			if first == "" || last == "" || strings.Contains(summary, first) || strings.Contains(summary, last) {
				continue
			}
		}
		missing = append(missing, b)
	}
	return missing
}

// restoreCodeBlocks 把缺失的代码块原样追加到摘要末尾。
func restoreCodeBlocks(summary string, missing []codeBlock) string {
	if len(missing) == 0 {
		return summary
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(summary, "\n"))
	sb.WriteString("\n\n## Important Code Blocks\n\n")
	sb.WriteString("The following code snippets from the conversation must be preserved:\n")
	for _, b := range missing {
		lang := b.lang
		if lang == "text" {
			lang = ""
		}
		sb.WriteString("\n```")
		sb.WriteString(lang)
		sb.WriteString("\n")
		sb.WriteString(b.code)
		sb.WriteString("\n```\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
