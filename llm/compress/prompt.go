package compress

import (
	"strings"
)

const continueInstruction = "Based on the conversation history summarized above, please continue the discussion naturally. " +
	"The most recent messages are provided verbatim to give you the exact current context."

// ContinuationPrompt 把压缩后的对话包装成"继续讨论"的提示词，
// 并按目标模型家族使用不同的角色前缀。
func ContinuationPrompt(content, targetModel string) string {
	body := "# Previous Conversation Summary\n\n" + content
	model := strings.ToLower(targetModel)
	switch {
	case strings.HasPrefix(model, "gpt-"):
		return "System: " + continueInstruction + "\n\n" + body + "\n\nUser: "
	case strings.HasPrefix(model, "claude-"):
		return "Human: " + continueInstruction + "\n\n" + body + "\n\nHuman: "
	case strings.HasPrefix(model, "gemini-"):
		body = strings.ReplaceAll(body, "Assistant:", "Model:")
		return "User: " + continueInstruction + "\n\n" + body + "\n\nUser: "
	default:
		return continueInstruction + "\n\n" + body + "\n\n"
	}
}
