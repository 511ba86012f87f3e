package embedding

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// geminiEmbedder is the slice of *genai.Models used here.
type geminiEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEncoder embeds text with the Gemini embeddings API.
type GeminiEncoder struct {
	models geminiEmbedder
	model  string
	dims   int
}

// NewGeminiEncoder creates a Gemini encoder for model.
func NewGeminiEncoder(ctx context.Context, apiKey, model string, dims int) (*GeminiEncoder, error) {
	if apiKey == "" {
		return nil, eris.New("embedding: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embedding: create gemini client")
	}
	return &GeminiEncoder{models: client.Models, model: model, dims: dims}, nil
}

func (e *GeminiEncoder) Model() string   { return e.model }
func (e *GeminiEncoder) Dimensions() int { return e.dims }

func (e *GeminiEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"}
	if e.dims > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dims))
	}

	resp, err := e.models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: gemini embed")
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, eris.New("embedding: gemini returned no embeddings")
	}
	return resp.Embeddings[0].Values, nil
}
