package compress

import (
	"fmt"
	"strings"
	"testing"

	"github.com/IshaanRSharma/chatdigest/llm/chunker"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeBlocks(t *testing.T) {
	src := "Intro.\n\n```python\nprint('hello world')\n```\n\nthen\n\n~~~\nplain block\n~~~\n"
	blocks := extractCodeBlocks(src)
	require.Len(t, blocks, 2)
	assert.Equal(t, codeBlock{lang: "python", code: "print('hello world')"}, blocks[0])
	assert.Equal(t, codeBlock{lang: "", code: "plain block"}, blocks[1])

	assert.Empty(t, extractCodeBlocks("no code here"))
}

func TestMissingCodeBlocks(t *testing.T) {
	long := codeBlock{lang: "go", code: "func main() {\n    fmt.Println(\"hi\")\n}"}
	short := codeBlock{lang: "sh", code: "ls"}
	twoLine := codeBlock{lang: "sql", code: "SELECT id FROM users\nWHERE active = true"}

	tests := []struct {
		name    string
		summary string
		want    []codeBlock
	}{
		{"all missing", "nothing relevant", []codeBlock{long, twoLine}},
		{"whitespace differences ignored", "kept: func main() { fmt.Println(\"hi\") } and SELECT id FROM users WHERE active = true", nil},
		{"first line survives", "they wrote func main() { and more", []codeBlock{twoLine}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := missingCodeBlocks(tt.summary, []codeBlock{long, short, twoLine})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRestoreCodeBlocks(t *testing.T) {
	assert.Equal(t, "summary", restoreCodeBlocks("summary", nil))

	got := restoreCodeBlocks("summary\n", []codeBlock{
		{lang: "go", code: "x := 1"},
		{lang: "text", code: "raw"},
	})
	want := "summary\n\n## Important Code Blocks\n\n" +
		"The following code snippets from the conversation must be preserved:\n" +
		"\n```go\nx := 1\n```\n" +
		"\n```\nraw\n```"
	assert.Equal(t, want, got)
}

func TestChunkCodeBlocks_IgnoresRoleLabel(t *testing.T) {
	// the fence opens the message, so the rendered chunk puts it after "User: "
	content := "```go\nfunc handler() error { return nil }\n```"
	tr := types.NewTranscript(types.Message{Role: types.RoleUser, Content: content})
	chunks := chunker.Split(tr, 1000, nil)
	require.Len(t, chunks, 1)

	blocks := chunkCodeBlocks(chunks, 0)
	require.Len(t, blocks, 1)
	assert.Equal(t, "func handler() error { return nil }", blocks[0].code)
}

func TestChunkCodeBlocks_BlockSplitAcrossChunks(t *testing.T) {
	var code strings.Builder
	code.WriteString("```go\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&code, "value_%02d := compute(%02d) // cached\n", i, i)
	}
	code.WriteString("```\n")
	tr := types.NewTranscript(types.Message{Role: types.RoleAssistant, Content: "Full listing:\n\n" + code.String()})

	chunks := chunker.Split(tr, 100, nil)
	require.Greater(t, len(chunks), 3)

	for i, c := range chunks {
		var lines []string
		for _, s := range c.Segments {
			if strings.Contains(s.Content, "compute(") {
				lines = append(lines, strings.TrimRight(s.Content, "\n"))
			}
		}
		if len(lines) == 0 {
			continue
		}
		blocks := chunkCodeBlocks(chunks, i)
		require.Len(t, blocks, 1, "chunk %d", i)
		assert.Equal(t, "go", blocks[0].lang)
		assert.Equal(t, strings.Join(lines, "\n"), blocks[0].code, "chunk %d", i)
	}
}
