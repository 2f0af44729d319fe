package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/runger/clipfix/internal/procgroup"
)

// ClaudeCLI talks to Claude through the `claude --print` command line tool.
type ClaudeCLI struct {
	binary string
	model  string
	grace  time.Duration

	once    sync.Once
	cliPath string
}

// NewClaudeCLI returns a backend that runs binary (default "claude").
func NewClaudeCLI(binary, model string) *ClaudeCLI {
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeCLI{binary: binary, model: model, grace: procgroup.DefaultGracePeriod}
}

func (c *ClaudeCLI) Name() string { return "anthropic" }

func (c *ClaudeCLI) Model() string { return c.model }

// Available reports whether the CLI is on PATH.
func (c *ClaudeCLI) Available() bool {
	c.once.Do(func() {
		if path, err := exec.LookPath(c.binary); err == nil {
			c.cliPath = path
		}
	})
	return c.cliPath != ""
}

// Generate pipes prompt to the CLI. The CLI has no output limit flag, so
// the budget is enforced on the reply.
func (c *ClaudeCLI) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("%w: %s not found on PATH", ErrUnavailable, c.binary)
	}

	args := []string{"--print"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	// The CLI runs on node and may fork; cancellation takes down the group.
	cmd := exec.Command(c.cliPath, args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := procgroup.Run(ctx, cmd, c.grace)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("claude error: %s", strings.TrimSpace(stderr.String()))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("claude exited with status %d", exitErr.ExitCode())
		}
		return "", fmt.Errorf("failed to run claude: %w", err)
	}

	reply := strings.TrimSpace(stdout.String())
	if reply == "" {
		return "", ErrEmptyReply
	}
	if maxTokens > 0 && estimateTokens(reply) > maxTokens {
		return "", fmt.Errorf("%w: ~%d tokens, budget %d", ErrBudgetExceeded, estimateTokens(reply), maxTokens)
	}
	return reply, nil
}
