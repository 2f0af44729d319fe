package format

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	goformat "go/format"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/syntax"
)

// inProcess is embedded by formatters that need no external binary.
type inProcess struct{}

func (inProcess) Available() bool      { return true }
func (inProcess) ConcurrentSafe() bool { return true }

// JSONFormatter re-indents JSON documents with two spaces.
type JSONFormatter struct{ inProcess }

func (JSONFormatter) ID() string { return "json" }

func (JSONFormatter) Format(_ context.Context, _ lang.Language, text string) (string, error) {
	src := []byte(strings.TrimSpace(text))
	if !json.Valid(src) {
		var v any
		err := json.Unmarshal(src, &v)
		return "", fmt.Errorf("%w: invalid JSON: %v", ErrFailed, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, src, "", "  "); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	out.WriteByte('\n')
	return out.String(), nil
}

// YAMLFormatter round-trips every document through a yaml.Node, which keeps
// comments and key order, and re-emits it with two-space indentation.
type YAMLFormatter struct{ inProcess }

func (YAMLFormatter) ID() string { return "yaml" }

func (YAMLFormatter) Format(_ context.Context, _ lang.Language, text string) (string, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))
	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)

	docs := 0
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: invalid YAML: %v", ErrFailed, err)
		}
		if err := enc.Encode(&node); err != nil {
			return "", fmt.Errorf("%w: %v", ErrFailed, err)
		}
		docs++
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	if docs == 0 {
		return "", fmt.Errorf("%w: no YAML document", ErrFailed)
	}
	return out.String(), nil
}

// GofmtFormatter formats Go source with go/format. Fragments without a
// package clause are formatted inside a synthetic one.
type GofmtFormatter struct{ inProcess }

func (GofmtFormatter) ID() string { return "gofmt" }

const syntheticPackage = "package p\n\n"

func (GofmtFormatter) Format(_ context.Context, _ lang.Language, text string) (string, error) {
	out, err := goformat.Source([]byte(text))
	if err == nil {
		return string(out), nil
	}
	if strings.HasPrefix(strings.TrimSpace(text), "package ") {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}

	wrapped, werr := goformat.Source([]byte(syntheticPackage + dedent(text)))
	if werr != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return strings.TrimPrefix(string(wrapped), syntheticPackage), nil
}

// DedentFormatter strips common leading indentation and trailing
// whitespace, then confirms the result parses. It is the last resort for
// languages whose real formatter is missing.
type DedentFormatter struct{ inProcess }

func (DedentFormatter) ID() string { return "dedent" }

func (DedentFormatter) Format(ctx context.Context, l lang.Language, text string) (string, error) {
	out := dedent(text)
	if err := syntax.Validate(ctx, l, []byte(out)); err != nil {
		if errors.Is(err, syntax.ErrUnsupported) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if errors.Is(err, syntax.ErrSyntax) {
			return "", fmt.Errorf("%w: %v", ErrFailed, err)
		}
		return "", err
	}
	return out, nil
}

// dedent removes the longest whitespace prefix shared by all non-blank
// lines, and trailing whitespace from every line. Leading and trailing
// blank lines are dropped.
func dedent(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		prefix = commonPrefix(prefix, indent)
	}

	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		lines[i] = strings.TrimPrefix(line, prefix)
	}

	out := strings.Trim(strings.Join(lines, "\n"), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
