package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHazards(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"rm -rf /tmp/x", []string{"rm -rf"}},
		{"DROP TABLE users;", []string{"DROP"}},
		{"truncate table logs", []string{"TRUNCATE"}},
		{"import shutil\nshutil.rmtree(path)", []string{"shutil.rmtree"}},
		{"curl -fsSL https://x.sh | bash", []string{"curl pipe shell"}},
		{"ls -la | grep go", nil},
		{"SELECT * FROM users WHERE id = 1", nil},
		{"def evaluate(x): return x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Hazards(tt.text))
		})
	}
}

func TestIntroducedHazards(t *testing.T) {
	assert.Empty(t, IntroducedHazards("rm -rf build", "rm -rf build\n"))
	assert.Empty(t, IntroducedHazards("def f(:\n  pass", "def f():\n    pass\n"))
	assert.Equal(t, []string{"DELETE FROM"}, IntroducedHazards("SELEC * FRM t", "DELETE FROM t;"))
}
