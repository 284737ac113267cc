package transcript

import (
	"strings"
	"testing"

	"github.com/IshaanRSharma/chatdigest/testutil/fixtures"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func msg(role types.Role, content string) types.Message {
	return types.Message{Role: role, Content: content}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"json array", `[{"role":"user","content":"hi"}]`, FormatJSON},
		{"json object", `{"messages":[]}`, FormatJSON},
		{"broken json", `{"messages":`, FormatPlain},
		{"said", "You said:\nhi\nChatGPT said:\nhello", FormatSaid},
		{"markdown", "# User\nhi\n\n# Assistant\nhello", FormatMarkdown},
		{"markdown unknown headers only", "# Introduction\ntext", FormatPlain},
		{"labeled", "User: hi\nAssistant: hello", FormatLabeled},
		{"generic", "How do I list pods?\nCertainly! Run kubectl get pods.", FormatGeneric},
		{"single question stays plain", "how do I sort a slice?", FormatPlain},
		{"plain", "just some notes", FormatPlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.content))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  Format
		want    []types.Message
	}{
		{
			name:    "json array",
			content: `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":""}]`,
			format:  FormatJSON,
			want:    []types.Message{msg(types.RoleUser, "hi"), msg(types.RoleAssistant, "hello")},
		},
		{
			name:    "json messages object with content parts",
			content: `{"messages":[{"role":"system","content":"be brief"},{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}`,
			format:  FormatJSON,
			want:    []types.Message{msg(types.RoleSystem, "be brief"), msg(types.RoleAssistant, "a\nb")},
		},
		{
			name:    "json dialogue with speaker and text",
			content: `{"dialogue":[{"speaker":"Human","text":"q"},{"speaker":"AI","message":"a"}]}`,
			format:  FormatJSON,
			want:    []types.Message{msg(types.RoleUser, "q"), msg(types.RoleAssistant, "a")},
		},
		{
			name:    "json without messages falls back to plain",
			content: `{"title":"x"}`,
			format:  FormatJSON,
			want:    []types.Message{msg(types.RoleUser, `{"title":"x"}`)},
		},
		{
			name:    "json of wrong shape falls back to plain",
			content: `[1, 2]`,
			format:  FormatPlain,
			want:    []types.Message{msg(types.RoleUser, `[1, 2]`)},
		},
		{
			name:    "said with unlabeled lead",
			content: "how do I sort a slice?\nChatGPT said:\nUse sort.Slice.\nYou said:\nthanks",
			format:  FormatSaid,
			want: []types.Message{
				msg(types.RoleUser, "how do I sort a slice?"),
				msg(types.RoleAssistant, "Use sort.Slice."),
				msg(types.RoleUser, "thanks"),
			},
		},
		{
			name:    "markdown headers",
			content: "# User\nhi there\n\n## Assistant\nhello\n\n# Introduction\n\nstill assistant",
			format:  FormatMarkdown,
			want: []types.Message{
				msg(types.RoleUser, "hi there"),
				msg(types.RoleAssistant, "hello\n\n# Introduction\n\nstill assistant"),
			},
		},
		{
			name:    "labeled with continuation lines",
			content: "Human: first line\nsecond line\nAI: answer\nSystem: note",
			format:  FormatLabeled,
			want: []types.Message{
				msg(types.RoleUser, "first line\nsecond line"),
				msg(types.RoleAssistant, "answer"),
				msg(types.RoleSystem, "note"),
			},
		},
		{
			name:    "labeled ignores labels inside code fences",
			content: "User: show me\nAssistant: here\n```\nUser: not a label\n```",
			format:  FormatLabeled,
			want: []types.Message{
				msg(types.RoleUser, "show me"),
				msg(types.RoleAssistant, "here\n```\nUser: not a label\n```"),
			},
		},
		{
			name:    "plain",
			content: "  some notes  \n",
			format:  FormatPlain,
			want:    []types.Message{msg(types.RoleUser, "some notes")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.format, got.Format)
			assert.True(t, got.Transcript.Equal(types.NewTranscript(tt.want...)),
				"got %#v", got.Transcript)
			assert.NoError(t, got.Transcript.Validate())
		})
	}
}

func TestParse_Generic(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []types.Message
	}{
		{
			name: "wording cues alternate speakers and code stays with the answer",
			content: "How do I reverse a slice in Go?\n" +
				"Certainly! You can swap elements in place:\n" +
				"```go\n" +
				"for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {\n" +
				"\ts[i], s[j] = s[j], s[i]\n" +
				"}\n" +
				"```\n" +
				"Can it be done generically?\n" +
				"Of course! Use a type parameter.",
			want: []types.Message{
				msg(types.RoleUser, "How do I reverse a slice in Go?"),
				msg(types.RoleAssistant, "Certainly! You can swap elements in place:\n```go\n"+
					"for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {\n\ts[i], s[j] = s[j], s[i]\n}\n```"),
				msg(types.RoleUser, "Can it be done generically?"),
				msg(types.RoleAssistant, "Of course! Use a type parameter."),
			},
		},
		{
			name:    "consecutive user lines merge into one turn",
			content: "Please review the migration.\nWhat about the rollback?\nSure thing! Both steps look safe.",
			want: []types.Message{
				msg(types.RoleUser, "Please review the migration.\nWhat about the rollback?"),
				msg(types.RoleAssistant, "Sure thing! Both steps look safe."),
			},
		},
		{
			name:    "three blank lines hand over the turn",
			content: "the deploy failed twice overnight\n\n\n\nthe cache warmer timed out",
			want: []types.Message{
				msg(types.RoleUser, "the deploy failed twice overnight"),
				msg(types.RoleAssistant, "the cache warmer timed out"),
			},
		},
		{
			name:    "cues inside code fences are ignored",
			content: "Write a greeting function.\nHere is an example:\n```\nWhat is this?\n```",
			want: []types.Message{
				msg(types.RoleUser, "Write a greeting function."),
				msg(types.RoleAssistant, "Here is an example:\n```\nWhat is this?\n```"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.content)
			require.NoError(t, err)
			assert.Equal(t, FormatGeneric, got.Format)
			assert.True(t, got.Transcript.Equal(types.NewTranscript(tt.want...)),
				"got %#v", got.Transcript)
			assert.NoError(t, got.Transcript.Validate())
		})
	}
}

func TestParseAs_GenericWithoutCues(t *testing.T) {
	got, err := ParseAs("  release notes for v2  ", FormatGeneric)
	require.NoError(t, err)
	assert.Equal(t, FormatGeneric, got.Format)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, types.RoleUser, got.Transcript[0].Role)
	assert.Equal(t, "release notes for v2", got.Transcript[0].Content)
}

func TestParse_ExportFixtures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"json", fixtures.JSONExport, FormatJSON},
		{"said", fixtures.SaidExport, FormatSaid},
		{"markdown", fixtures.MarkdownExport, FormatMarkdown},
		{"labeled", fixtures.PlainExport, FormatLabeled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, parsed.Format)

			tr := parsed.Transcript
			require.Len(t, tr, 3)
			assert.Equal(t, []types.Role{types.RoleUser, types.RoleAssistant, types.RoleUser},
				[]types.Role{tr[0].Role, tr[1].Role, tr[2].Role})
			assert.Equal(t, "How do I rotate the redis credentials?", tr[0].Content)
			assert.True(t, strings.HasPrefix(tr[1].Content, "Update the secret"))
			assert.Equal(t, "Does the cache survive the restart?", tr[2].Content)
			assert.NoError(t, tr.Validate())
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("   \n")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestParseAs(t *testing.T) {
	got, err := ParseAs("User: hi", FormatPlain)
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, got.Format)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, "User: hi", got.Transcript[0].Content)

	_, err = ParseAs(`{"messages":`, FormatJSON)
	require.Error(t, err)
	assert.Equal(t, types.ErrParseFailed, types.GetErrorCode(err))

	_, err = ParseAs("hi", "xml")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, types.RoleUser, NormalizeRole(" You "))
	assert.Equal(t, types.RoleAssistant, NormalizeRole("ChatGPT"))
	assert.Equal(t, types.RoleSystem, NormalizeRole("developer"))
	assert.Equal(t, types.RoleTool, NormalizeRole("function"))
	assert.Equal(t, types.RoleUser, NormalizeRole("narrator"))
}

func TestFormat_Valid(t *testing.T) {
	for _, f := range Formats() {
		assert.True(t, f.Valid())
	}
	assert.False(t, Format("xml").Valid())
}

func TestProperty_ParseAlwaysYieldsValidTranscript(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.String().Draw(rt, "content")
		got, err := Parse(content)
		if err != nil {
			assert.Equal(rt, types.ErrInvalidRequest, types.GetErrorCode(err))
			return
		}
		assert.NotEmpty(rt, got.Transcript)
		assert.NoError(rt, got.Transcript.Validate())
		assert.True(rt, got.Format.Valid())
	})
}
