package chunker

import (
	"fmt"
	"strings"

	"github.com/IshaanRSharma/chatdigest/types"
)

// joinFor returns the separator placed before output i.
// A chunk that continues a message is glued to its predecessor only while
// the predecessor's output is still the untouched source text.
func joinFor(chunks []Chunk, outputs []string, i int) string {
	if i == 0 {
		return ""
	}
	if chunks[i].ContinuesPrevious() && outputs[i-1] == chunks[i-1].Text() {
		return ""
	}
	return types.MessageSeparator
}

// Reassemble 按块顺序（而非完成顺序）拼接各块的输出。
// 当每个输出都等于对应块的原文时，结果与原对话的 Serialize 完全一致。
func Reassemble(chunks []Chunk, outputs []string) (string, error) {
	if len(chunks) != len(outputs) {
		return "", fmt.Errorf("reassemble: %d chunks but %d outputs", len(chunks), len(outputs))
	}
	var sb strings.Builder
	for i, out := range outputs {
		sb.WriteString(joinFor(chunks, outputs, i))
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// ReassembleTranscript 返回摘要对话：每段输出为一条 digest 消息，
// 与前一段直接拼接的输出并入前一条消息，使 Serialize 结果与 Reassemble 相同。
func ReassembleTranscript(chunks []Chunk, outputs []string) (types.Transcript, error) {
	if len(chunks) != len(outputs) {
		return nil, fmt.Errorf("reassemble: %d chunks but %d outputs", len(chunks), len(outputs))
	}
	out := make(types.Transcript, 0, len(outputs))
	for i, text := range outputs {
		if i > 0 && joinFor(chunks, outputs, i) == "" {
			out[len(out)-1].Content += text
			continue
		}
		out = append(out, types.Message{Role: types.RoleDigest, Content: text, Ordinal: len(out)})
	}
	return out, nil
}

// Restore 从块中重建原始对话，逐条消息还原。
func Restore(chunks []Chunk) types.Transcript {
	var out types.Transcript
	for _, c := range chunks {
		for _, s := range c.Segments {
			if s.Part > 0 && len(out) > 0 {
				out[len(out)-1].Content += s.Content
				continue
			}
			out = append(out, types.Message{Role: s.Role, Content: s.Content, Ordinal: s.Ordinal})
		}
	}
	if out == nil {
		return types.Transcript{}
	}
	return out
}
