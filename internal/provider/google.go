package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API through the genai SDK. The client is created
// on first use.
type Gemini struct {
	apiKey string
	model  string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGemini reads GEMINI_API_KEY, falling back to GOOGLE_API_KEY.
func NewGemini(model string) *Gemini {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{apiKey: key, model: model}
}

func (g *Gemini) Name() string { return "google" }

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Available() bool { return g.apiKey != "" }

func (g *Gemini) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !g.Available() {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrUnavailable)
	}

	g.once.Do(func() {
		g.client, g.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.clientErr != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", g.clientErr)
	}

	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return "", fmt.Errorf("%w: budget %d", ErrBudgetExceeded, maxTokens)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
