// Package store holds the evidence store: normative articles, one embedding
// per (article, model), the label section catalog and run history.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// EvidenceQuery is a filtered nearest-neighbor request. Vector must be unit
// normalized under Model. Results are ordered by similarity descending with
// ties broken by ascending article ID, filtered to Similarity >=
// MinSimilarity and capped to Limit (0 means no cap).
type EvidenceQuery struct {
	Model         string
	Jurisdictions []string
	Status        model.ArticleStatus
	Vector        []float32
	MinSimilarity float64
	Limit         int
}

// Store defines the persistence interface used by the engine and the CLI.
// The engine only reads evidence; writes come from corpus loading and run
// history.
type Store interface {
	// Corpus
	UpsertJurisdictions(ctx context.Context, js []model.Jurisdiction) error
	InsertArticles(ctx context.Context, articles []model.NormativeArticle) error
	InsertEmbeddings(ctx context.Context, records []model.EmbeddingRecord) error

	// Evidence
	FindEvidence(ctx context.Context, q EvidenceQuery) ([]model.RetrievedEvidence, error)
	EmbeddingDimension(ctx context.Context, modelName string) (int, error)
	CorpusStats(ctx context.Context) (CorpusStats, error)

	// Section catalog
	UpsertSections(ctx context.Context, sections []model.SectionDefinition) error
	ListSections(ctx context.Context) ([]model.SectionDefinition, error)

	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, evidenceCount int, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// CorpusStats summarizes what the store holds.
type CorpusStats struct {
	Jurisdictions int            `json:"jurisdictions"`
	Articles      int            `json:"articles"`
	Embeddings    map[string]int `json:"embeddings"`
}

func validateEmbedding(r model.EmbeddingRecord) error {
	if r.Model == "" {
		return eris.Errorf("store: embedding for article %d has no model", r.ArticleID)
	}
	if len(r.Vector) == 0 || r.Dimensions != len(r.Vector) {
		return eris.Errorf("store: embedding for article %d declares %d dimensions, has %d",
			r.ArticleID, r.Dimensions, len(r.Vector))
	}
	return nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
