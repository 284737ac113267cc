// Package types provides core types used across chatdigest.
// This package has ZERO dependencies on other chatdigest packages to avoid circular imports.
package types

import (
	"fmt"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleDigest 标记压缩后的摘要文本，序列化时不带角色前缀。
	RoleDigest Role = "digest"
)

// Label returns the prefix written before a message of this role when serialized.
func (r Role) Label() string {
	switch r {
	case RoleSystem:
		return "System: "
	case RoleUser:
		return "User: "
	case RoleAssistant:
		return "Assistant: "
	case RoleTool:
		return "Tool: "
	case RoleDigest, "":
		return ""
	default:
		return strings.ToUpper(string(r[:1])) + string(r[1:]) + ": "
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleDigest:
		return true
	}
	return false
}

// MessageSeparator joins serialized messages.
const MessageSeparator = "\n\n"

// Message represents one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Ordinal int    `json:"ordinal"`
}

// Render returns the message as it appears inside a serialized transcript.
func (m Message) Render() string {
	return m.Role.Label() + m.Content
}

// Transcript is an ordered, immutable sequence of messages.
type Transcript []Message

// NewTranscript builds a transcript and assigns ordinals in order.
func NewTranscript(msgs ...Message) Transcript {
	t := make(Transcript, len(msgs))
	for i, m := range msgs {
		m.Ordinal = i
		t[i] = m
	}
	return t
}

// Serialize renders the transcript as plain text. Deterministic in the transcript.
func (t Transcript) Serialize() string {
	if len(t) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, m := range t {
		if i > 0 {
			sb.WriteString(MessageSeparator)
		}
		sb.WriteString(m.Render())
	}
	return sb.String()
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Equal reports whether both transcripts hold the same messages in the same order.
func (t Transcript) Equal(other Transcript) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks roles and ordinals.
func (t Transcript) Validate() error {
	for i, m := range t {
		if !m.Role.Valid() {
			return NewError(ErrInvalidRequest, fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
		if m.Ordinal != i {
			return NewError(ErrInvalidRequest, fmt.Sprintf("message %d has ordinal %d", i, m.Ordinal))
		}
	}
	return nil
}

// DigestTranscript wraps already-compressed text as a single digest message.
func DigestTranscript(content string) Transcript {
	if content == "" {
		return Transcript{}
	}
	return Transcript{{Role: RoleDigest, Content: content}}
}
