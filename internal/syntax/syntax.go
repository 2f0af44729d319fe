// Package syntax checks source text for parse errors with tree-sitter.
package syntax

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/runger/clipfix/internal/lang"
)

var (
	// ErrUnsupported is returned for languages without a bundled grammar.
	ErrUnsupported = errors.New("no grammar for language")
	// ErrSyntax is returned when the parse tree contains error nodes.
	ErrSyntax = errors.New("syntax error")
)

// Error locates the first error node in the tree.
type Error struct {
	Language lang.Language
	Line     int // 1-based
	Column   int // 1-based
	Missing  bool
}

func (e *Error) Error() string {
	what := "unexpected input"
	if e.Missing {
		what = "missing token"
	}
	return fmt.Sprintf("%s: %s at line %d, column %d", e.Language, what, e.Line, e.Column)
}

func (e *Error) Unwrap() error { return ErrSyntax }

func grammar(l lang.Language) *sitter.Language {
	switch l {
	case lang.Go:
		return golang.GetLanguage()
	case lang.Python:
		return python.GetLanguage()
	case lang.Rust:
		return rust.GetLanguage()
	case lang.JavaScript:
		return javascript.GetLanguage()
	case lang.TypeScript:
		return typescript.GetLanguage()
	case lang.Bash:
		return bash.GetLanguage()
	default:
		return nil
	}
}

// Supported reports whether Validate can check l.
func Supported(l lang.Language) bool {
	return grammar(l) != nil
}

// Validate parses src and returns a *Error wrapping ErrSyntax if the tree has
// error or missing nodes. Parsers are created per call; they are not safe
// for concurrent use.
func Validate(ctx context.Context, l lang.Language, src []byte) error {
	g := grammar(l)
	if g == nil {
		return fmt.Errorf("%w: %s", ErrUnsupported, l)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", l, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	if n := firstError(root); n != nil {
		p := n.StartPoint()
		return &Error{Language: l, Line: int(p.Row) + 1, Column: int(p.Column) + 1, Missing: n.IsMissing()}
	}
	return &Error{Language: l, Line: 1, Column: 1}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
