package generation

import (
	"context"
	"errors"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/pkg/openai"
)

// OpenAIBackend completes prompts against an OpenAI-compatible chat
// completions endpoint.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI-compatible backend for model.
func NewOpenAIBackend(client openai.Client, model string) *OpenAIBackend {
	return &OpenAIBackend{client: client, model: model}
}

func (b *OpenAIBackend) Name() string { return b.model }

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	temp, maxTokens := req.Temperature, req.MaxTokens

	var msgs []openai.Message
	if req.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: req.Prompt})

	resp, err := b.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = b.model
	}
	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: cost.Usage{
			Input:  int64(resp.Usage.PromptTokens),
			Output: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}
