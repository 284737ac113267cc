package summarizer

import (
	"fmt"
	"strings"
)

// ChunkContext 描述块在整段对话中的位置，用于构造指令。
type ChunkContext struct {
	Index        int
	Total        int
	TargetTokens int
	// PrevRole/PrevTopic 是前一块最后一条消息的角色与开头。
	PrevRole  string
	PrevTopic string
	// NextRole/NextTopic 是后一块第一条消息的角色与开头。
	NextRole  string
	NextTopic string
	// Continues 表示块从一条消息的中间开始。
	Continues bool
	// Pass 是第几轮压缩（从 1 开始）。
	Pass int
}

const topicRunes = 50

// Topic returns the first 50 runes of text, with an ellipsis when cut.
func Topic(text string) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= topicRunes {
		return text
	}
	return string(r[:topicRunes]) + "..."
}

// Describe 返回块的位置描述。
func (c ChunkContext) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "This is part %d of %d of the conversation. ", c.Index+1, c.Total)

	if c.Index == 0 {
		sb.WriteString("This is the beginning of the conversation. ")
	} else if c.PrevTopic != "" {
		fmt.Fprintf(&sb, "It follows a message where the %s was discussing: '%s'. ", c.PrevRole, c.PrevTopic)
	}
	if c.Continues {
		sb.WriteString("It starts in the middle of a message that began in the previous part. ")
	}

	if c.Index == c.Total-1 {
		sb.WriteString("This is the end of the conversation being summarized.")
	} else if c.NextTopic != "" {
		fmt.Fprintf(&sb, "It is followed by a message where the %s begins discussing: '%s'.", c.NextRole, c.NextTopic)
	}
	return strings.TrimSpace(sb.String())
}

// Instructions 构造发给摘要模型的指令：保留代码块原文、决定与未决问题，
// 并给出目标长度。
func Instructions(c ChunkContext) string {
	var sb strings.Builder
	sb.WriteString("Summarize this conversation segment concisely while preserving all important information.\n\n")
	fmt.Fprintf(&sb, "CONTEXT: %s\n\n", c.Describe())
	sb.WriteString("You MUST preserve:\n")
	sb.WriteString("1. Every fenced code block, copied verbatim with its fences and language tag\n")
	sb.WriteString("2. All questions and their answers\n")
	sb.WriteString("3. Decisions made and requirements or constraints stated\n")
	sb.WriteString("4. Open questions and unresolved issues\n")
	sb.WriteString("5. Technical details such as names, versions, numbers and error messages\n")
	sb.WriteString("6. References to earlier or later parts of the conversation\n\n")

	if c.Index == 0 {
		sb.WriteString("As this is the beginning of the conversation, include all context-setting information.\n")
	}
	if c.Total > 0 && c.Index == c.Total-1 {
		sb.WriteString("As this is the end of the conversation, keep enough detail to continue it directly.\n")
	}
	if c.Pass > 1 {
		sb.WriteString("The segment is already a summary; condense it further without dropping code or decisions.\n")
	}
	if c.TargetTokens > 0 {
		fmt.Fprintf(&sb, "Keep the summary under %d tokens.\n", c.TargetTokens)
	}
	sb.WriteString("Focus on factual technical information rather than conversational filler. ")
	sb.WriteString("Reply with the summary only.")
	return sb.String()
}

// Prompt joins instructions and chunk text into a single completion prompt,
// for backends without a separate system prompt.
func Prompt(chunkText, instructions string) string {
	return instructions + "\n\nConversation segment:\n" + chunkText + "\n\nConcise summary preserving all key information:"
}
