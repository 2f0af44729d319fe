package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
)

// Clipboard access, swapped out in tests.
var (
	clipboardRead  = clipboard.ReadAll
	clipboardWrite = clipboard.WriteAll
)

type sourceKind int

const (
	sourceClipboard sourceKind = iota
	sourceStdin
	sourceFile
)

// source is where the input text comes from.
type source struct {
	kind sourceKind
	path string
}

func (s source) String() string {
	switch s.kind {
	case sourceStdin:
		return "stdin"
	case sourceFile:
		return s.path
	default:
		return "clipboard"
	}
}

func resolveSource(args []string, stdin bool) (source, error) {
	switch {
	case len(args) == 1 && stdin:
		return source{}, errors.New("--stdin cannot be combined with a file argument")
	case len(args) == 1:
		return source{kind: sourceFile, path: args[0]}, nil
	case stdin:
		return source{kind: sourceStdin}, nil
	default:
		return source{kind: sourceClipboard}, nil
	}
}

func (s source) read(stdin io.Reader) (string, error) {
	switch s.kind {
	case sourceStdin:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case sourceFile:
		data, err := os.ReadFile(s.path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", s.path, err)
		}
		return string(data), nil
	default:
		text, err := clipboardRead()
		if err != nil {
			return "", fmt.Errorf("failed to read clipboard: %w", err)
		}
		return text, nil
	}
}
