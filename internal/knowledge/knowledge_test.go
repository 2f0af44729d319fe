package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/clipfix/internal/lang"
)

func TestBuiltinProfilesAreValid(t *testing.T) {
	for _, l := range lang.All {
		p, err := Builtin(l)
		require.NoError(t, err, "language %s", l)
		assert.Equal(t, l, p.Language)
		assert.NotEmpty(t, p.Formatters, "language %s has no formatters", l)
	}
}

func TestStore_GetBuiltin(t *testing.T) {
	s := NewStore("", nil)

	p := s.Get(lang.Python)
	assert.Equal(t, lang.Python, p.Language)
	assert.Equal(t, []string{"ruff", "black", "dedent"}, p.Formatters)
	assert.Equal(t, "#", p.CommentPrefix)
	assert.False(t, p.Generic)
}

func TestStore_GetUnknownIsGeneric(t *testing.T) {
	s := NewStore("", nil)

	p := s.Get(lang.Language("cobol"))
	assert.True(t, p.Generic)
	assert.Empty(t, p.Formatters)
	assert.Contains(t, p.Render("MOVE A TO B"), "cobol")
}

func TestStore_GetIsCached(t *testing.T) {
	s := NewStore("", nil)

	first := s.Get(lang.SQL)
	second := s.Get(lang.SQL)
	assert.Same(t, first, second)
	assert.Equal(t, []lang.Language{lang.SQL}, s.Loaded())
}

func TestStore_ConcurrentGetReturnsOneProfile(t *testing.T) {
	s := NewStore("", nil)

	var wg sync.WaitGroup
	got := make([]*Profile, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.Get(lang.Rust)
		}(i)
	}
	wg.Wait()

	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
}

func TestStore_Override(t *testing.T) {
	dir := t.TempDir()
	content := `language: python
comment_prefix: "#"
formatters: [black]
max_tokens: 512
repair_prompt: "fix {code} please"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "python.yaml"), []byte(content), 0o644))

	s := NewStore(dir, nil)
	p := s.Get(lang.Python)
	assert.Equal(t, []string{"black"}, p.Formatters)
	assert.Equal(t, 512, p.Budget(2048))
	assert.Equal(t, "fix x = 1 please", p.Render("x = 1"))
}

func TestStore_InvalidOverrideFallsBackToBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sql.yaml"), []byte("repair_prompt: no placeholder\n"), 0o644))

	s := NewStore(dir, nil)
	p := s.Get(lang.SQL)
	assert.Equal(t, []string{"sqlfluff"}, p.Formatters)
	assert.True(t, strings.HasPrefix(p.Source, "builtin:"))
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		wantErr bool
	}{
		{"one placeholder", "fix {code}", false},
		{"none", "fix it", true},
		{"two", "{code} and {code}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Profile{RepairPrompt: tt.prompt}).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProfile)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfile_RenderLeavesCodeBracesAlone(t *testing.T) {
	p := &Profile{
		Language:     lang.Python,
		RepairPrompt: "Rules:\n{style_rules}\nErrors:\n{common_errors}\nCode:\n{code}",
		StyleRules:   []string{"four spaces"},
	}

	got := p.Render("d = {style_rules}")
	assert.Equal(t, "Rules:\n- four spaces\nErrors:\n- (none)\nCode:\nd = {style_rules}", got)
}

func TestProfile_Budget(t *testing.T) {
	assert.Equal(t, 100, (&Profile{MaxTokens: 100}).Budget(500))
	assert.Equal(t, 500, (&Profile{}).Budget(500))
	assert.Equal(t, DefaultMaxTokens, (&Profile{}).Budget(0))
}

func TestProfile_HasCommentSyntax(t *testing.T) {
	s := NewStore("", nil)
	assert.False(t, s.Get(lang.JSON).HasCommentSyntax())
	assert.True(t, s.Get(lang.Bash).HasCommentSyntax())
}
