package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAI calls the chat completions API. With a base URL it also works
// against local OpenAI-compatible servers, which need no API key.
type OpenAI struct {
	client  openai.Client
	apiKey  string
	baseURL string
	model   string
}

// NewOpenAI reads OPENAI_API_KEY, and OPENAI_BASE_URL when baseURL is empty.
func NewOpenAI(baseURL, model string) *OpenAI {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Available() bool {
	return o.apiKey != "" || o.baseURL != ""
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !o.Available() {
		return "", fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrUnavailable)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", fmt.Errorf("%w: budget %d", ErrBudgetExceeded, maxTokens)
	}
	reply := strings.TrimSpace(choice.Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
