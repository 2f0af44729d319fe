package provider

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "x = 1", "x = 1\n"},
		{"fenced with lang", "```python\ndef f():\n    pass\n```", "def f():\n    pass\n"},
		{"fenced with surrounding space", "\n\n```\nx\n```\n\n", "x\n"},
		{"tilde fence", "~~~js\nlet a\n~~~", "let a\n"},
		{"only opener", "```sql\nSELECT 1;", "SELECT 1;\n"},
		{"empty fence", "```\n```", ""},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.reply))
		})
	}
}

func TestExtractField(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{"bare json", `{"language": "rust"}`, "rust", true},
		{"json with prose", `Sure! {"language":"go"} hope that helps`, "go", true},
		{"fenced json", "```json\n{\"language\": \"sql\"}\n```", "sql", true},
		{"plain line", "I think\nLanguage: Python.\n", "Python", true},
		{"wrong type", `{"language": 3}`, "", false},
		{"nothing", "no idea", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractField(tt.reply, "language")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Truncate(short, 100))
	assert.Equal(t, short, Truncate(short, 0))

	long := strings.Repeat("a", 70) + strings.Repeat("b", 130)
	got := Truncate(long, 100)
	assert.LessOrEqual(t, len(got), 100)
	assert.True(t, strings.HasPrefix(got, "aaaa"))
	assert.True(t, strings.HasSuffix(got, "bbbb"))
	assert.Contains(t, got, "[truncated]")
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("é", 200)
	got := Truncate(s, 101)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 101)
}
