package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		expected string
	}{
		{
			name:     "empty",
			markdown: "",
			expected: "",
		},
		{
			name:     "plain paragraph",
			markdown: "Just text.",
			expected: "Just text.",
		},
		{
			name:     "heading and paragraph",
			markdown: "## Findings\n\nX is a thing.",
			expected: "Findings\n\nX is a thing.",
		},
		{
			name:     "emphasis stripped",
			markdown: "This is **bold** and *italic*.",
			expected: "This is bold and italic.",
		},
		{
			name:     "inline code kept",
			markdown: "Run `go version` first.",
			expected: "Run go version first.",
		},
		{
			name:     "link text kept",
			markdown: "See [the docs](https://example.com) for details.",
			expected: "See the docs for details.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PlainText(tt.markdown))
		})
	}
}

func TestFlattenText(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "string", input: "hello", expected: "hello"},
		{name: "string slice", input: []string{"a", "b"}, expected: "a\n\nb"},
		{name: "any slice", input: []any{"a", "b"}, expected: "a\n\nb"},
		{name: "number", input: 42, expected: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FlattenText(tt.input))
		})
	}
}
