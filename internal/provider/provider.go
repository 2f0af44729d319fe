// Package provider adapts generative model backends to the single call
// clipfix needs: send a prompt, get text back within a token budget.
package provider

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrUnavailable means the backend is not configured or not installed.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrBudgetExceeded means the reply was longer than the requested budget.
	ErrBudgetExceeded = errors.New("reply exceeded token budget")
	// ErrEmptyReply means the backend answered with nothing usable.
	ErrEmptyReply = errors.New("empty reply from backend")
	// ErrCircuitOpen means recent calls failed and the backend is resting.
	ErrCircuitOpen = errors.New("backend circuit open")
)

// Backend is a generative model.
type Backend interface {
	// Name returns the backend name ("anthropic", "openai", "google").
	Name() string
	// Available reports whether the backend can be called.
	Available() bool
	// Generate returns the model's reply to prompt, bounded by maxTokens
	// output tokens. Callers set deadlines through ctx.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Modeler is implemented by backends that can report the model they use.
type Modeler interface {
	Model() string
}

// ModelOf returns the backend's model name, or its name when unknown.
func ModelOf(b Backend) string {
	if m, ok := b.(Modeler); ok && m.Model() != "" {
		return b.Name() + "/" + m.Model()
	}
	return b.Name()
}

// Config selects and configures backends.
type Config struct {
	// Provider is "auto" or a backend name.
	Provider string
	// Model overrides the backend's default model.
	Model string
	// ClaudeBinary is the Claude CLI executable, default "claude".
	ClaudeBinary string
	// OpenAIBaseURL points the OpenAI backend at a compatible server.
	OpenAIBaseURL string
	Logger        *slog.Logger
}

// estimateTokens approximates a token count at four bytes per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
