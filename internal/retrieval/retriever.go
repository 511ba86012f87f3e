// Package retrieval ranks normative evidence for a free-text query across a
// set of jurisdictions.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/embedding"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/store"
)

// ModelMismatchError reports that the store holds no vectors compatible with
// the encoder's model.
type ModelMismatchError struct {
	Model          string
	Dimensions     int
	StoreDimension int
}

func (e *ModelMismatchError) Error() string {
	if e.StoreDimension == 0 {
		return fmt.Sprintf("retrieval: no stored embeddings for model %q", e.Model)
	}
	return fmt.Sprintf("retrieval: model %q encodes %d dimensions, store holds %d",
		e.Model, e.Dimensions, e.StoreDimension)
}

// EvidenceFinder is the read side of the evidence store.
type EvidenceFinder interface {
	FindEvidence(ctx context.Context, q store.EvidenceQuery) ([]model.RetrievedEvidence, error)
	EmbeddingDimension(ctx context.Context, modelName string) (int, error)
}

// Retriever encodes queries and ranks stored evidence against them.
type Retriever struct {
	encoder embedding.Encoder
	finder  EvidenceFinder
}

// New creates a Retriever.
func New(encoder embedding.Encoder, finder EvidenceFinder) *Retriever {
	return &Retriever{encoder: encoder, finder: finder}
}

// Model returns the embedding model queries are encoded with.
func (r *Retriever) Model() string { return r.encoder.Model() }

// Retrieve returns in-force evidence from the given jurisdictions whose
// similarity to query is at least threshold, ordered by similarity
// descending (ties by article ID ascending) and capped to topK. An empty
// jurisdiction set or no qualifying candidate yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, jurisdictions []string, topK int, threshold float64) ([]model.RetrievedEvidence, error) {
	codes := dedupe(jurisdictions)
	if len(codes) == 0 || topK <= 0 {
		return []model.RetrievedEvidence{}, nil
	}
	if threshold < 0 || threshold > 1 {
		return nil, eris.Errorf("retrieval: threshold %v outside [0,1]", threshold)
	}

	modelName := r.encoder.Model()
	storeDims, err := r.finder.EmbeddingDimension(ctx, modelName)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: embedding dimension")
	}
	if storeDims == 0 {
		return nil, &ModelMismatchError{Model: modelName, Dimensions: r.encoder.Dimensions()}
	}
	if d := r.encoder.Dimensions(); d > 0 && d != storeDims {
		return nil, &ModelMismatchError{Model: modelName, Dimensions: d, StoreDimension: storeDims}
	}

	vec, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != storeDims {
		return nil, &ModelMismatchError{Model: modelName, Dimensions: len(vec), StoreDimension: storeDims}
	}

	rows, err := r.finder.FindEvidence(ctx, store.EvidenceQuery{
		Model:         modelName,
		Jurisdictions: codes,
		Status:        model.ArticleInForce,
		Vector:        vec,
		MinSimilarity: threshold,
		Limit:         topK,
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: find evidence")
	}

	out := rank(rows, codes, threshold, topK)
	zap.L().Debug("retrieval: ranked evidence",
		zap.String("model", modelName),
		zap.Strings("jurisdictions", codes),
		zap.Int("candidates", len(rows)),
		zap.Int("returned", len(out)),
	)
	return out, nil
}

// rank enforces the result contract on whatever the store returned:
// jurisdiction membership, threshold, total order and cap.
func rank(rows []model.RetrievedEvidence, codes []string, threshold float64, topK int) []model.RetrievedEvidence {
	allowed := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		allowed[c] = struct{}{}
	}

	out := make([]model.RetrievedEvidence, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, ev := range rows {
		if _, ok := allowed[ev.JurisdictionCode]; !ok {
			continue
		}
		if ev.Similarity < threshold {
			continue
		}
		if _, dup := seen[ev.ArticleID]; dup {
			continue
		}
		seen[ev.ArticleID] = struct{}{}
		out = append(out, ev)
	}

	model.SortEvidence(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func dedupe(codes []string) []string {
	set := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := set[c]; ok {
			continue
		}
		set[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
