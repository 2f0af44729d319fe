// Package lang names the languages clipfix can classify, format and repair,
// and maps the many spellings found in fences, heredocs and file names onto
// them.
package lang

import (
	"path/filepath"
	"strings"
)

// Language is a canonical language identifier.
type Language string

const (
	Unknown    Language = ""
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Bash       Language = "bash"
	Rust       Language = "rust"
	SQL        Language = "sql"
	Go         Language = "go"
	JSON       Language = "json"
	YAML       Language = "yaml"
)

// All lists every supported language in a stable order.
var All = []Language{Python, JavaScript, TypeScript, Bash, Rust, SQL, Go, JSON, YAML}

var aliases = map[string]Language{
	"python":     Python,
	"python3":    Python,
	"py":         Python,
	"py3":        Python,
	"javascript": JavaScript,
	"js":         JavaScript,
	"node":       JavaScript,
	"nodejs":     JavaScript,
	"jsx":        JavaScript,
	"mjs":        JavaScript,
	"cjs":        JavaScript,
	"typescript": TypeScript,
	"ts":         TypeScript,
	"tsx":        TypeScript,
	"bash":       Bash,
	"sh":         Bash,
	"shell":      Bash,
	"zsh":        Bash,
	"ksh":        Bash,
	"rust":       Rust,
	"rs":         Rust,
	"sql":        SQL,
	"postgres":   SQL,
	"postgresql": SQL,
	"psql":       SQL,
	"pgsql":      SQL,
	"mysql":      SQL,
	"sqlite":     SQL,
	"plpgsql":    SQL,
	"go":         Go,
	"golang":     Go,
	"json":       JSON,
	"jsonc":      JSON,
	"yaml":       YAML,
	"yml":        YAML,
}

// passthrough names fences whose contents are prose or program output.
var passthrough = map[string]bool{
	"text":      true,
	"txt":       true,
	"plain":     true,
	"plaintext": true,
	"console":   true,
	"output":    true,
	"log":       true,
	"diff":      true,
	"patch":     true,
	"markdown":  true,
	"md":        true,
}

// interpreters maps executable names found before a heredoc to languages.
var interpreters = map[string]Language{
	"python":  Python,
	"python3": Python,
	"python2": Python,
	"pypy3":   Python,
	"node":    JavaScript,
	"deno":    TypeScript,
	"ts-node": TypeScript,
	"tsx":     TypeScript,
	"bun":     JavaScript,
	"bash":    Bash,
	"sh":      Bash,
	"zsh":     Bash,
	"dash":    Bash,
	"psql":    SQL,
	"mysql":   SQL,
	"sqlite3": SQL,
	"duckdb":  SQL,
}

// extensions maps file extensions (with the dot) to languages.
var extensions = map[string]Language{
	".py":   Python,
	".js":   JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".jsx":  JavaScript,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".sh":   Bash,
	".bash": Bash,
	".zsh":  Bash,
	".rs":   Rust,
	".sql":  SQL,
	".go":   Go,
	".json": JSON,
	".yaml": YAML,
	".yml":  YAML,
}

// Normalize resolves a hint such as "py", "Python3" or "{.ts}" to a canonical
// language. The second result is false when the name is not recognized.
func Normalize(name string) (Language, bool) {
	key := strings.ToLower(strings.Trim(strings.TrimSpace(name), "{}.`"))
	if key == "" {
		return Unknown, false
	}
	l, ok := aliases[key]
	return l, ok
}

// IsPassthrough reports whether a fence hint marks non-code content.
func IsPassthrough(name string) bool {
	return passthrough[strings.ToLower(strings.TrimSpace(name))]
}

// FromInterpreter resolves an executable name or path, e.g. "/usr/bin/python3".
func FromInterpreter(name string) (Language, bool) {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(name)))
	l, ok := interpreters[base]
	return l, ok
}

// FromPath resolves a file name by its extension.
func FromPath(path string) (Language, bool) {
	l, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// Supported reports whether l is one of All.
func Supported(l Language) bool {
	for _, s := range All {
		if s == l {
			return true
		}
	}
	return false
}

// Parse is Normalize restricted to canonical spellings; it is used for
// configuration values where aliases would be surprising.
func Parse(name string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(name)))
	return l, Supported(l)
}

func (l Language) String() string {
	if l == Unknown {
		return "unknown"
	}
	return string(l)
}
