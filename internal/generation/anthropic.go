package generation

import (
	"context"

	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/pkg/anthropic"
)

// AnthropicBackend completes prompts with Claude models.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend creates a Claude backend for model.
func NewAnthropicBackend(client anthropic.Client, model string) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model}
}

func (b *AnthropicBackend) Name() string { return b.model }

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	temp := req.Temperature
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(req.System, "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("generation: response truncated at max_tokens",
			zap.String("model", b.model),
			zap.Int("max_tokens", req.MaxTokens),
		)
	}

	return &Completion{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: cost.Usage{
			Input:      resp.Usage.InputTokens,
			Output:     resp.Usage.OutputTokens,
			CacheWrite: resp.Usage.CacheCreationInputTokens,
			CacheRead:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}
