package classify

import (
	"regexp"
	"strings"

	"github.com/runger/clipfix/internal/lang"
)

// signal is one lexical rule. Strong signals are characteristic enough to
// decide on their own; weak signals only count when a single language has
// any.
type signal struct {
	Name   string
	Regex  *regexp.Regexp
	Strong bool
}

// DefaultSignalOrder lists languages from most to least specific.
var DefaultSignalOrder = []lang.Language{
	lang.Go, lang.Rust, lang.TypeScript, lang.Python, lang.JavaScript, lang.Bash, lang.SQL,
}

var signals = map[lang.Language][]signal{
	lang.Go: {
		{Name: "package clause", Regex: regexp.MustCompile(`(?m)^package\s+[a-z_][a-z0-9_]*\s*$`), Strong: true},
		{Name: "func declaration", Regex: regexp.MustCompile(`(?m)^func\s+(\([^)]*\)\s*)?[A-Za-z_]\w*\s*[\[(]`), Strong: true},
		{Name: "import block", Regex: regexp.MustCompile(`(?m)^import\s+\(\s*$`), Strong: true},
		{Name: "err check", Regex: regexp.MustCompile(`\bif\s+err\s*!=\s*nil\s*\{`), Strong: true},
		{Name: "short assignment", Regex: regexp.MustCompile(`\w\s*:=\s*\S`)},
		{Name: "fmt call", Regex: regexp.MustCompile(`\bfmt\.\w+\(`)},
		{Name: "nil", Regex: regexp.MustCompile(`\bnil\b`)},
	},
	lang.Rust: {
		{Name: "fn", Regex: regexp.MustCompile(`(?m)^\s*(pub(\([\w:]+\))?\s+)?(async\s+)?fn\s+\w+\s*[<(]`), Strong: true},
		{Name: "use path", Regex: regexp.MustCompile(`(?m)^\s*(pub\s+)?use\s+\w+(::[\w{}*, ]+)+;`), Strong: true},
		{Name: "impl", Regex: regexp.MustCompile(`(?m)^\s*impl\b[^{]*\{`), Strong: true},
		{Name: "let mut", Regex: regexp.MustCompile(`\blet\s+mut\b`), Strong: true},
		{Name: "macro", Regex: regexp.MustCompile(`\b(println|eprintln|print|format|vec|panic|assert|assert_eq|write|writeln)!\s*[(\[]`), Strong: true},
		{Name: "derive", Regex: regexp.MustCompile(`(?m)^\s*#\[(derive|cfg|test)\b`), Strong: true},
		{Name: "path separator", Regex: regexp.MustCompile(`\w::\w`)},
		{Name: "self reference", Regex: regexp.MustCompile(`&(mut\s+)?self\b`)},
		{Name: "generic std types", Regex: regexp.MustCompile(`\b(Result|Option|Vec|Box)<`)},
	},
	lang.TypeScript: {
		{Name: "interface", Regex: regexp.MustCompile(`(?m)^\s*(export\s+)?interface\s+\w+\s*(<[^>]*>)?\s*(extends\s+[^{]+)?\{`), Strong: true},
		{Name: "type alias", Regex: regexp.MustCompile(`(?m)^\s*(export\s+)?type\s+\w+\s*(<[^>]*>)?\s*=`), Strong: true},
		{Name: "type annotation", Regex: regexp.MustCompile(`\w\??\s*:\s*(string|number|boolean|unknown|never|void|any)\b(\[\])?\s*[,;)=|{]`), Strong: true},
		{Name: "enum", Regex: regexp.MustCompile(`(?m)^\s*(export\s+)?(const\s+)?enum\s+\w+\s*\{`), Strong: true},
		{Name: "as const", Regex: regexp.MustCompile(`\bas\s+const\b`), Strong: true},
		{Name: "access modifier", Regex: regexp.MustCompile(`(?m)^\s*(public|private|protected|readonly)\s+\w+\s*[:(]`), Strong: true},
		{Name: "optional member", Regex: regexp.MustCompile(`\w\?:\s*\w`)},
		{Name: "array type", Regex: regexp.MustCompile(`:\s*\w+\[\]`)},
	},
	lang.Python: {
		{Name: "def", Regex: regexp.MustCompile(`(?m)^\s*(async\s+)?def\s+\w+\s*\(`), Strong: true},
		{Name: "class", Regex: regexp.MustCompile(`(?m)^\s*class\s+\w+(\([^)]*\))?\s*:\s*$`), Strong: true},
		{Name: "from import", Regex: regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\s+`), Strong: true},
		{Name: "import", Regex: regexp.MustCompile(`(?m)^import\s+[\w.]+(\s+as\s+\w+)?(\s*,\s*[\w.]+)*\s*$`), Strong: true},
		{Name: "main guard", Regex: regexp.MustCompile(`__name__\s*==\s*['"]__main__['"]`), Strong: true},
		{Name: "elif", Regex: regexp.MustCompile(`(?m)^\s*elif\b`), Strong: true},
		{Name: "with as", Regex: regexp.MustCompile(`(?m)^\s*(async\s+)?with\s+.+\s+as\s+\w+\s*:\s*$`), Strong: true},
		{Name: "block colon", Regex: regexp.MustCompile(`(?m)^\s*(if|for|while|try|except|else|finally)\b[^{;]*:\s*$`)},
		{Name: "self attribute", Regex: regexp.MustCompile(`\bself\.\w`)},
		{Name: "constants", Regex: regexp.MustCompile(`\b(None|True|False)\b`)},
		{Name: "print call", Regex: regexp.MustCompile(`\bprint\(`)},
	},
	lang.JavaScript: {
		{Name: "console", Regex: regexp.MustCompile(`\bconsole\.(log|error|warn|info|debug)\s*\(`), Strong: true},
		{Name: "const declaration", Regex: regexp.MustCompile(`(?m)^\s*(export\s+)?(const|var)\s+[\w$]+\s*=`), Strong: true},
		{Name: "destructuring", Regex: regexp.MustCompile(`(?m)^\s*(const|let|var)\s+[{\[][^=]*[}\]]\s*=`), Strong: true},
		{Name: "require", Regex: regexp.MustCompile(`\brequire\(\s*['"]`), Strong: true},
		{Name: "es import", Regex: regexp.MustCompile(`(?m)^\s*import\s+.+\s+from\s+['"]`), Strong: true},
		{Name: "exports", Regex: regexp.MustCompile(`\bmodule\.exports\b|\bexport\s+default\b`), Strong: true},
		{Name: "dom", Regex: regexp.MustCompile(`\b(document|window)\.\w`), Strong: true},
		{Name: "arrow", Regex: regexp.MustCompile(`=>`)},
		{Name: "function", Regex: regexp.MustCompile(`\bfunction\b`)},
		{Name: "let", Regex: regexp.MustCompile(`(?m)^\s*let\s+[\w$]+`)},
		{Name: "strict equality", Regex: regexp.MustCompile(`===|!==`)},
	},
	lang.Bash: {
		{Name: "test bracket", Regex: regexp.MustCompile(`(?m)^\s*(if|while|elif)\s+\[\[?\s`), Strong: true},
		{Name: "block end", Regex: regexp.MustCompile(`(?m)^\s*(fi|esac|done)\s*;?\s*$`), Strong: true},
		{Name: "export", Regex: regexp.MustCompile(`(?m)^\s*export\s+[A-Za-z_][A-Za-z0-9_]*=`), Strong: true},
		{Name: "command", Regex: regexp.MustCompile(`(?m)^\s*(sudo\s+)?(echo|cd|ls|mkdir|rm|cp|mv|chmod|chown|curl|wget|apt|apt-get|brew|git|docker|kubectl|npm|npx|pip|pip3|yarn|make|grep|cat|tar|ssh|scp|systemctl|source)\s+\S`), Strong: true},
		{Name: "pipe filter", Regex: regexp.MustCompile(`\|\s*(grep|awk|sed|xargs|sort|uniq|head|tail|wc|tee|cut|tr|jq)\b`), Strong: true},
		{Name: "set options", Regex: regexp.MustCompile(`(?m)^\s*set\s+-[euxo]`), Strong: true},
		{Name: "assignment", Regex: regexp.MustCompile(`(?m)^\s*[A-Za-z_][A-Za-z0-9_]*=\S`)},
		{Name: "variable", Regex: regexp.MustCompile(`\$[A-Za-z_{(]`)},
		{Name: "redirect", Regex: regexp.MustCompile(`\d?>>?\s*/|2>&1`)},
	},
	lang.SQL: {
		{Name: "select from", Regex: regexp.MustCompile(`(?is)^\s*SELECT\b.+\bFROM\b`), Strong: true},
		{Name: "statement", Regex: regexp.MustCompile(`(?im)^\s*(INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM|CREATE\s+(OR\s+REPLACE\s+)?(TABLE|VIEW|DATABASE|SCHEMA|FUNCTION|(UNIQUE\s+)?INDEX)|ALTER\s+TABLE|DROP\s+(TABLE|VIEW|INDEX))\b`), Strong: true},
		{Name: "cte", Regex: regexp.MustCompile(`(?im)^\s*WITH\s+\w+\s+AS\s*\(`), Strong: true},
		{Name: "clauses", Regex: regexp.MustCompile(`(?i)\b(WHERE|JOIN|GROUP\s+BY|ORDER\s+BY|VALUES|HAVING)\b`)},
	},
}

// matchShebang resolves "#!/usr/bin/env python3" style first lines.
func matchShebang(text string) (lang.Language, bool) {
	first, _, _ := strings.Cut(strings.TrimLeft(text, " \t\r\n"), "\n")
	if !strings.HasPrefix(first, "#!") {
		return lang.Unknown, false
	}
	fields := strings.Fields(strings.TrimPrefix(first, "#!"))
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if strings.HasPrefix(f, "-") {
			continue
		}
		if l, ok := lang.FromInterpreter(f); ok {
			return l, true
		}
	}
	return lang.Unknown, false
}

// matchStrong returns the first language in order with a strong signal.
func matchStrong(text string, order []lang.Language) (lang.Language, string, bool) {
	for _, l := range order {
		for _, s := range signals[l] {
			if s.Strong && s.Regex.MatchString(text) {
				return l, s.Name, true
			}
		}
	}
	return lang.Unknown, "", false
}

// matchWeak returns the languages in order that have at least one weak signal.
func matchWeak(text string, order []lang.Language) []lang.Language {
	var out []lang.Language
	for _, l := range order {
		for _, s := range signals[l] {
			if !s.Strong && s.Regex.MatchString(text) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
