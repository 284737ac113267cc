package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBlocks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []block
	}{
		{
			name:    "empty",
			content: "",
			want:    []block{{}},
		},
		{
			name:    "paragraphs",
			content: "one\n\ntwo",
			want:    []block{{text: "one\n\n"}, {text: "two"}},
		},
		{
			name:    "backtick fence",
			content: "before\n```go\nx := 1\n```\nafter",
			want: []block{
				{text: "before\n"},
				{text: "```go\nx := 1\n```\n", code: true},
				{text: "after"},
			},
		},
		{
			name:    "tilde fence with longer close",
			content: "~~~\na\n~~~~\n",
			want:    []block{{text: "~~~\na\n~~~~\n", code: true}},
		},
		{
			name:    "shorter close does not end block",
			content: "````\n```\nstill code\n````",
			want:    []block{{text: "````\n```\nstill code\n````", code: true}},
		},
		{
			name:    "unclosed fence runs to end",
			content: "```\nno close\n\nmore",
			want:    []block{{text: "```\nno close\n\nmore", code: true}},
		},
		{
			name:    "blank lines inside code stay in block",
			content: "```\na\n\nb\n```",
			want:    []block{{text: "```\na\n\nb\n```", code: true}},
		},
		{
			name:    "four space indent is not a fence",
			content: "    ```\ntext",
			want:    []block{{text: "    ```\ntext"}},
		},
		{
			name:    "backtick in info string is not a fence",
			content: "``` a`b\n",
			want:    []block{{text: "``` a`b\n"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitBlocks(tt.content)
			assert.Equal(t, tt.want, got)

			var sb strings.Builder
			for _, b := range got {
				sb.WriteString(b.text)
			}
			assert.Equal(t, tt.content, sb.String())
		})
	}
}

func TestCodeBlocks(t *testing.T) {
	content := "intro\n```sh\nls\n```\nmiddle\n~~~\ncat\n~~~"
	got := CodeBlocks(content)
	require.Len(t, got, 2)
	assert.Equal(t, "```sh\nls\n```\n", got[0])
	assert.Equal(t, "~~~\ncat\n~~~", got[1])
	assert.Empty(t, CodeBlocks("no code here"))
}

func TestOpenFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fence", "plain text\n", ""},
		{"closed", "```go\nx := 1\n```\n", ""},
		{"unclosed", "intro\n```go\nx := 1\n", "```go\n"},
		{"unclosed without break", "~~~~", "~~~~\n"},
		{"shorter closer keeps it open", "````\ncode\n```\n", "````\n"},
		{"reopened", "```\na\n```\n```sh\nls\n", "```sh\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OpenFence(tt.content))
		})
	}
}
