package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/resilience"
)

// OllamaEncoder embeds text with a local Ollama server.
type OllamaEncoder struct {
	endpoint string
	model    string
	dims     int
	http     *http.Client
}

// NewOllamaEncoder creates an Ollama encoder for model at endpoint.
func NewOllamaEncoder(endpoint, model string, dims int) *OllamaEncoder {
	return &OllamaEncoder{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		dims:     dims,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *OllamaEncoder) Model() string   { return e.model }
func (e *OllamaEncoder) Dimensions() int { return e.dims }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, eris.Wrap(err, "embedding: ollama marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "embedding: ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: ollama call")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("embedding: ollama status %d: %s", resp.StatusCode, msg)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "embedding: ollama decode")
	}
	if len(out.Embedding) == 0 {
		return nil, eris.New("embedding: ollama returned no embedding")
	}
	return out.Embedding, nil
}
