package generation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/config"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/pkg/anthropic"
	"github.com/aalabel/aalabel-cli/pkg/openai"
)

// openAIPrefix forces the OpenAI-compatible adapter for any model name,
// e.g. "openai:llama3.1" against a local vLLM server.
const openAIPrefix = "openai:"

// NewBackend selects a backend from the model name.
func NewBackend(ctx context.Context, cfg *config.Config, modelName string) (Backend, error) {
	switch {
	case strings.HasPrefix(modelName, "claude-"):
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("generation: anthropic.key is required for claude models")
		}
		return NewAnthropicBackend(anthropic.NewClient(cfg.Anthropic.Key), modelName), nil

	case strings.HasPrefix(modelName, "gemini-"):
		return NewGeminiBackend(ctx, cfg.Gemini.Key, modelName)

	case strings.HasPrefix(modelName, openAIPrefix),
		strings.HasPrefix(modelName, "gpt-"),
		strings.HasPrefix(modelName, "o1"),
		strings.HasPrefix(modelName, "o3"),
		strings.HasPrefix(modelName, "o4"):
		var opts []openai.Option
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		name := strings.TrimPrefix(modelName, openAIPrefix)
		return NewOpenAIBackend(openai.NewClient(cfg.OpenAI.Key, opts...), name), nil

	default:
		return nil, eris.Errorf("generation: unsupported model %q", modelName)
	}
}

// New builds the configured Generator: backend by model name, guard with
// timeout, optional retry and circuit breaker, and rate limit.
func New(ctx context.Context, cfg *config.Config) (*Generator, error) {
	backend, err := NewBackend(ctx, cfg, cfg.Generation.Model)
	if err != nil {
		return nil, err
	}

	var opts []resilience.GuardOption
	if cfg.Generation.MaxAttempts > 1 {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Generation.MaxAttempts
		opts = append(opts, resilience.WithRetry(retry))
	}
	if cfg.Generation.CircuitThreshold > 0 {
		opts = append(opts, resilience.WithCircuitBreaker(
			resilience.NewCircuitBreaker("generation:"+backend.Name(), cfg.Generation.CircuitThreshold, cfg.Generation.Timeout()),
		))
	}
	guard := resilience.NewGuard("generation:"+backend.Name(), cfg.Generation.Timeout(), opts...)

	return NewGenerator(backend, guard,
		WithTemperature(cfg.Generation.Temperature),
		WithMaxTokens(cfg.Generation.MaxTokens),
		WithRequestsPerMinute(cfg.Generation.RequestsPerMinute),
	), nil
}
