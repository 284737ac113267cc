package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkContext_Describe(t *testing.T) {
	tests := []struct {
		name string
		ctx  ChunkContext
		want []string
	}{
		{
			name: "single chunk",
			ctx:  ChunkContext{Index: 0, Total: 1},
			want: []string{"part 1 of 1", "beginning of the conversation", "end of the conversation"},
		},
		{
			name: "middle chunk",
			ctx: ChunkContext{
				Index: 1, Total: 3,
				PrevRole: "user", PrevTopic: "database schema",
				NextRole: "assistant", NextTopic: "migration plan",
				Continues: true,
			},
			want: []string{
				"part 2 of 3",
				"the user was discussing: 'database schema'",
				"middle of a message",
				"the assistant begins discussing: 'migration plan'",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ctx.Describe()
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestInstructions(t *testing.T) {
	got := Instructions(ChunkContext{Index: 1, Total: 4, TargetTokens: 350, Pass: 2})
	assert.Contains(t, got, "verbatim")
	assert.Contains(t, got, "Open questions")
	assert.Contains(t, got, "under 350 tokens")
	assert.Contains(t, got, "already a summary")
	assert.NotContains(t, got, "beginning of the conversation, include")
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "short", Topic("  short  "))
	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", Topic(long))
}

func TestPrompt(t *testing.T) {
	p := Prompt("User: hi", "Do it.")
	assert.True(t, strings.HasPrefix(p, "Do it."))
	assert.Contains(t, p, "Conversation segment:\nUser: hi")
}
