package embedding

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/pkg/jina"
)

// JinaEncoder embeds text with the Jina embeddings API.
type JinaEncoder struct {
	client jina.Client
	model  string
	dims   int
}

// NewJinaEncoder creates a Jina encoder for model.
func NewJinaEncoder(client jina.Client, model string, dims int) *JinaEncoder {
	return &JinaEncoder{client: client, model: model, dims: dims}
}

func (e *JinaEncoder) Model() string   { return e.model }
func (e *JinaEncoder) Dimensions() int { return e.dims }

func (e *JinaEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, jina.EmbeddingRequest{
		Model:      e.model,
		Input:      []string{text},
		Task:       "retrieval.query",
		Dimensions: e.dims,
	})
	if err != nil {
		var apiErr *jina.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "embedding: jina embed")
	}
	return resp.Data[0].Embedding, nil
}
