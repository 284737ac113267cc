package compress

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/testutil"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestReduction(t *testing.T) {
	tests := []struct {
		name                 string
		original, compressed int
		want                 float64
	}{
		{"zero original", 0, 0, 0},
		{"zero original nonzero compressed", 0, 10, 0},
		{"sixty percent", 100, 40, 60},
		{"grew", 100, 150, 0},
		{"everything removed", 100, 0, 100},
		{"rounded to one decimal", 3, 1, 66.7},
		{"negative compressed", 10, -5, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduction(tt.original, tt.compressed))
		})
	}
}

func TestProperty_ReductionBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		original := rapid.IntRange(0, 1_000_000).Draw(rt, "original")
		compressed := rapid.IntRange(0, 2_000_000).Draw(rt, "compressed")
		r := Reduction(original, compressed)
		assert.GreaterOrEqual(rt, r, 0.0)
		assert.LessOrEqual(rt, r, 100.0)
		if original == 0 {
			assert.Equal(rt, 0.0, r)
		}
		if compressed >= original {
			assert.Equal(rt, 0.0, r)
		}
	})
}

func TestProperty_UnderBudgetIsIdentity(t *testing.T) {
	acc := testutil.OfflineAccountant(t)
	c := New(acc, summarizer.Func(func(context.Context, string, string) (string, error) {
		return "", errors.New("must not be called")
	}), testConfig(), Deps{})

	roles := []types.Role{types.RoleUser, types.RoleAssistant, types.RoleSystem, types.RoleTool}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "messages")
		msgs := make([]types.Message, n)
		for i := range msgs {
			msgs[i] = types.Message{
				Role:    rapid.SampledFrom(roles).Draw(rt, "role"),
				Content: rapid.StringN(0, 200, -1).Draw(rt, "content"),
			}
		}
		tr := types.NewTranscript(msgs...)

		res, err := c.Compress(context.Background(), tr, "test-8k", WithBudgetTokens(1_000_000))
		assert.NoError(rt, err)
		if err != nil {
			return
		}
		assert.True(rt, res.Transcript.Equal(tr))
		assert.Equal(rt, tr.Serialize(), res.Content)
		assert.Equal(rt, 0.0, res.ReductionPercentage)
		assert.False(rt, res.OverBudget)
		assert.Equal(rt, 0, res.Passes)
	})
}

func TestCompressionFailedError(t *testing.T) {
	inner := types.NewError(types.ErrCompressionFailed, "summarization failed for too many chunks")
	err := &CompressionFailedError{Err: inner, FailedChunks: 3, TotalChunks: 3}

	assert.True(t, errors.Is(err, inner))
	assert.True(t, types.IsErrorCode(err, types.ErrCompressionFailed))
	assert.True(t, strings.HasPrefix(err.Error(), "compression failed: 3 of 3 chunks failed"))
}

func TestContinuationPrompt(t *testing.T) {
	content := "User: hi\n\nAssistant: hello"
	tests := []struct {
		model  string
		prefix string
		suffix string
	}{
		{"gpt-4o", "System: Based on the conversation history", "\n\nUser: "},
		{"claude-3-opus", "Human: Based on the conversation history", "\n\nHuman: "},
		{"gemini-pro", "User: Based on the conversation history", "\n\nUser: "},
		{"llama-3", "Based on the conversation history", "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got := ContinuationPrompt(content, tt.model)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.True(t, strings.HasSuffix(got, tt.suffix), got)
			assert.Contains(t, got, "# Previous Conversation Summary")
		})
	}

	assert.Contains(t, ContinuationPrompt(content, "gemini-pro"), "Model: hello")
	assert.Contains(t, ContinuationPrompt(content, "claude-3-opus"), "Assistant: hello")
}
