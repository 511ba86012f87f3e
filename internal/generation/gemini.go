package generation

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/aalabel/aalabel-cli/internal/cost"
)

// geminiGenerator is the slice of *genai.Models used here.
type geminiGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend completes prompts with Gemini models.
type GeminiBackend struct {
	models geminiGenerator
	model  string
}

// NewGeminiBackend creates a Gemini backend for model.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, eris.New("generation: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "generation: create gemini client")
	}
	return &GeminiBackend{models: client.Models, model: model}, nil
}

func (b *GeminiBackend) Name() string { return b.model }

func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, eris.Wrap(err, "generation: gemini generate")
	}

	out := &Completion{Text: resp.Text(), Model: b.model}
	if resp.UsageMetadata != nil {
		out.Usage = cost.Usage{
			Input:     int64(resp.UsageMetadata.PromptTokenCount),
			Output:    int64(resp.UsageMetadata.CandidatesTokenCount),
			CacheRead: int64(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	return out, nil
}
