package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/procgroup"
)

// FilePlaceholder is replaced by the path of the temporary input file.
const FilePlaceholder = "{file}"

// CommandSpec describes an external formatter binary.
type CommandSpec struct {
	ID string `yaml:"id"`
	// Command is split with POSIX shell rules. If it has no {file} argument
	// and Stdin is false, the file path is appended.
	Command string `yaml:"command"`
	// Extension of the temporary file, including the dot.
	Extension string `yaml:"extension"`
	// Stdin feeds the text on standard input and reads the result from
	// standard output instead of rewriting a file.
	Stdin bool `yaml:"stdin,omitempty"`
	// Dedent strips common indentation first, for indentation-sensitive
	// tools that reject indented fragments.
	Dedent bool `yaml:"dedent,omitempty"`
	// Serial marks tools that break when several copies run at once.
	Serial bool `yaml:"serial,omitempty"`
}

// DefaultCommands is the external formatter catalogue.
var DefaultCommands = []CommandSpec{
	{ID: "ruff", Command: "ruff format {file}", Extension: ".py", Dedent: true},
	{ID: "black", Command: "black --quiet {file}", Extension: ".py", Dedent: true},
	{ID: "shfmt", Command: "shfmt -w -i 2 -ci {file}", Extension: ".sh"},
	{ID: "rustfmt", Command: "rustfmt {file}", Extension: ".rs"},
	{ID: "prettier", Command: "prettier --write --parser babel {file}", Extension: ".js"},
	{ID: "prettier-ts", Command: "prettier --write --parser typescript {file}", Extension: ".ts"},
	{ID: "sqlfluff", Command: "sqlfluff fix --dialect postgres {file}", Extension: ".sql", Serial: true},
}

// CommandFormatter runs an external binary.
type CommandFormatter struct {
	spec  CommandSpec
	argv  []string
	grace time.Duration

	once      sync.Once
	available bool
}

// NewCommandFormatter parses spec.Command.
func NewCommandFormatter(spec CommandSpec) (*CommandFormatter, error) {
	if spec.ID == "" {
		return nil, errors.New("formatter id is required")
	}
	argv, err := shlex.Split(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command for %s: %w", spec.ID, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("formatter %s has an empty command", spec.ID)
	}
	if !spec.Stdin && !containsPlaceholder(argv) {
		argv = append(argv, FilePlaceholder)
	}
	if spec.Extension != "" && !strings.HasPrefix(spec.Extension, ".") {
		spec.Extension = "." + spec.Extension
	}
	return &CommandFormatter{spec: spec, argv: argv, grace: procgroup.DefaultGracePeriod}, nil
}

func containsPlaceholder(argv []string) bool {
	for _, a := range argv {
		if strings.Contains(a, FilePlaceholder) {
			return true
		}
	}
	return false
}

func (c *CommandFormatter) ID() string { return c.spec.ID }

// Binary is the executable name the formatter needs on PATH.
func (c *CommandFormatter) Binary() string { return c.argv[0] }

func (c *CommandFormatter) ConcurrentSafe() bool { return !c.spec.Serial }

// Available looks the binary up once.
func (c *CommandFormatter) Available() bool {
	c.once.Do(func() {
		_, err := exec.LookPath(c.argv[0])
		c.available = err == nil
	})
	return c.available
}

func (c *CommandFormatter) Format(ctx context.Context, _ lang.Language, text string) (string, error) {
	if c.spec.Dedent {
		text = dedent(text)
	}

	dir, err := os.MkdirTemp("", "clipfix-"+c.spec.ID+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "in"+c.spec.Extension)
	if !c.spec.Stdin {
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			return "", fmt.Errorf("failed to write input file: %w", err)
		}
	}

	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		args[i] = strings.ReplaceAll(a, FilePlaceholder, path)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	stderr := newTailWriter(diagnosticBytes)
	cmd.Stderr = stderr
	var stdout bytes.Buffer
	if c.spec.Stdin {
		cmd.Stdin = strings.NewReader(text)
		cmd.Stdout = &stdout
	} else {
		cmd.Stdout = newTailWriter(diagnosticBytes)
	}

	runErr := procgroup.Run(ctx, cmd, c.grace)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, c.spec.ID)
		}
		return "", ctxErr
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", fmt.Errorf("%w: failed to run %s: %v", ErrUnavailable, c.spec.ID, runErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(fmt.Sprint(cmd.Stdout))
		}
		if msg == "" {
			msg = exitErr.Error()
		}
		return "", fmt.Errorf("%w: %s: %s", ErrFailed, c.spec.ID, msg)
	}

	if c.spec.Stdin {
		return stdout.String(), nil
	}
	out, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read formatted file: %w", err)
	}
	return string(out), nil
}

// NewDefaultRegistry registers the in-process formatters, the command
// catalogue, and any extra specs. Extra specs with an existing ID replace it.
func NewDefaultRegistry(cfg RegistryConfig, extra []CommandSpec) (*Registry, error) {
	r := NewRegistry(cfg)
	r.Register(JSONFormatter{})
	r.Register(YAMLFormatter{})
	r.Register(GofmtFormatter{})
	r.Register(DedentFormatter{})

	specs := append(append([]CommandSpec(nil), DefaultCommands...), extra...)
	for _, spec := range specs {
		f, err := NewCommandFormatter(spec)
		if err != nil {
			return nil, err
		}
		r.Register(f)
	}
	return r, nil
}
