// Package corpus loads a prepared JSONL corpus of jurisdictions, normative
// articles and precomputed embeddings into the evidence store.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/aalabel/aalabel-cli/internal/embedding"
	"github.com/aalabel/aalabel-cli/internal/model"
)

// Record kinds in a corpus file.
const (
	KindJurisdiction = "jurisdiction"
	KindArticle      = "article"
	KindEmbedding    = "embedding"
)

const (
	defaultBatchSize = 500
	maxLineBytes     = 16 << 20
)

// Writer is the write side of the evidence store used by the loader.
type Writer interface {
	UpsertJurisdictions(ctx context.Context, js []model.Jurisdiction) error
	InsertArticles(ctx context.Context, articles []model.NormativeArticle) error
	InsertEmbeddings(ctx context.Context, records []model.EmbeddingRecord) error
	EmbeddingDimension(ctx context.Context, modelName string) (int, error)
}

// record is one JSONL line. Fields not used by Kind are ignored.
type record struct {
	Kind string `json:"type"`

	// jurisdiction
	Code string `json:"code"`
	Name string `json:"name"`

	// article
	ID             int64  `json:"id"`
	Jurisdiction   string `json:"jurisdiction"`
	SourceDocument string `json:"source_document"`
	ArticleNumber  string `json:"article_number"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalized_text"`
	Chapter        string `json:"chapter"`
	Section        string `json:"section"`
	Status         string `json:"status"`

	// embedding
	ArticleID   int64      `json:"article_id"`
	Model       string     `json:"model"`
	Vector      []float32  `json:"vector"`
	GeneratedAt *time.Time `json:"generated_at"`
}

// Result counts what a load wrote.
type Result struct {
	Jurisdictions int            `json:"jurisdictions"`
	Articles      int            `json:"articles"`
	Embeddings    map[string]int `json:"embeddings"`
}

// Loader validates corpus records and writes them in batches.
type Loader struct {
	w         Writer
	batchSize int
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize sets how many rows are written per store call.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(w Writer, opts ...Option) *Loader {
	l := &Loader{w: w, batchSize: defaultBatchSize}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LoadFile loads the JSONL corpus at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return l.Load(ctx, f)
}

// Load reads a JSONL corpus from r. The whole input is validated before any
// write. Loading the same corpus twice leaves the store unchanged.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Result, error) {
	var (
		jurisdictions []model.Jurisdiction
		articles      []model.NormativeArticle
		embeddings    []model.EmbeddingRecord
	)
	dims := map[string]int{}
	knownJur := map[string]bool{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrapf(err, "corpus: line %d", line)
		}

		switch rec.Kind {
		case KindJurisdiction:
			j, err := toJurisdiction(rec)
			if err != nil {
				return nil, eris.Wrapf(err, "corpus: line %d", line)
			}
			knownJur[j.Code] = true
			jurisdictions = append(jurisdictions, j)
		case KindArticle:
			a, err := toArticle(rec)
			if err != nil {
				return nil, eris.Wrapf(err, "corpus: line %d", line)
			}
			articles = append(articles, a)
		case KindEmbedding:
			e, err := toEmbedding(rec)
			if err != nil {
				return nil, eris.Wrapf(err, "corpus: line %d", line)
			}
			if d, ok := dims[e.Model]; ok && d != e.Dimensions {
				return nil, eris.Errorf("corpus: line %d: model %s has %d dimensions, earlier records have %d",
					line, e.Model, e.Dimensions, d)
			}
			dims[e.Model] = e.Dimensions
			embeddings = append(embeddings, e)
		default:
			return nil, eris.Errorf("corpus: line %d: unknown record type %q", line, rec.Kind)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "corpus: read")
	}

	for _, a := range articles {
		if !knownJur[a.JurisdictionCode] {
			zap.L().Debug("corpus: article jurisdiction not declared in file",
				zap.Int64("article_id", a.ID), zap.String("jurisdiction", a.JurisdictionCode))
		}
	}

	for m, d := range dims {
		stored, err := l.w.EmbeddingDimension(ctx, m)
		if err != nil {
			return nil, eris.Wrapf(err, "corpus: stored dimension for %s", m)
		}
		if stored != 0 && stored != d {
			return nil, eris.Errorf("corpus: model %s has %d dimensions in store, corpus has %d", m, stored, d)
		}
	}

	res := &Result{Embeddings: map[string]int{}}
	if err := batches(ctx, jurisdictions, l.batchSize, l.w.UpsertJurisdictions); err != nil {
		return nil, eris.Wrap(err, "corpus: write jurisdictions")
	}
	res.Jurisdictions = len(jurisdictions)

	if err := batches(ctx, articles, l.batchSize, l.w.InsertArticles); err != nil {
		return nil, eris.Wrap(err, "corpus: write articles")
	}
	res.Articles = len(articles)

	if err := batches(ctx, embeddings, l.batchSize, l.w.InsertEmbeddings); err != nil {
		return nil, eris.Wrap(err, "corpus: write embeddings")
	}
	for _, e := range embeddings {
		res.Embeddings[e.Model]++
	}

	zap.L().Info("corpus: load complete",
		zap.Int("jurisdictions", res.Jurisdictions),
		zap.Int("articles", res.Articles),
		zap.Int("embeddings", len(embeddings)),
	)
	return res, nil
}

func batches[T any](ctx context.Context, items []T, size int, write func(context.Context, []T) error) error {
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(items))
		if err := write(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func toJurisdiction(rec record) (model.Jurisdiction, error) {
	code := strings.ToUpper(strings.TrimSpace(rec.Code))
	if code == "" {
		return model.Jurisdiction{}, eris.New("jurisdiction without code")
	}
	return model.Jurisdiction{Code: code, Name: norm.NFC.String(strings.TrimSpace(rec.Name))}, nil
}

func toArticle(rec record) (model.NormativeArticle, error) {
	if rec.ID <= 0 {
		return model.NormativeArticle{}, eris.Errorf("article id must be positive, got %d", rec.ID)
	}
	code := strings.ToUpper(strings.TrimSpace(rec.Jurisdiction))
	if code == "" {
		return model.NormativeArticle{}, eris.Errorf("article %d without jurisdiction", rec.ID)
	}
	text := norm.NFC.String(strings.TrimSpace(rec.Text))
	if text == "" {
		return model.NormativeArticle{}, eris.Errorf("article %d without text", rec.ID)
	}
	status := model.ArticleStatus(rec.Status)
	if status == "" {
		status = model.ArticleInForce
	}
	if !status.Valid() {
		return model.NormativeArticle{}, eris.Errorf("article %d has unknown status %q", rec.ID, rec.Status)
	}
	return model.NormativeArticle{
		ID:               rec.ID,
		JurisdictionCode: code,
		SourceDocument:   norm.NFC.String(strings.TrimSpace(rec.SourceDocument)),
		ArticleNumber:    strings.TrimSpace(rec.ArticleNumber),
		FullText:         text,
		NormalizedText:   norm.NFC.String(strings.TrimSpace(rec.NormalizedText)),
		Chapter:          norm.NFC.String(rec.Chapter),
		Section:          norm.NFC.String(rec.Section),
		Status:           status,
	}, nil
}

func toEmbedding(rec record) (model.EmbeddingRecord, error) {
	if rec.ArticleID <= 0 {
		return model.EmbeddingRecord{}, eris.Errorf("embedding article_id must be positive, got %d", rec.ArticleID)
	}
	if rec.Model == "" {
		return model.EmbeddingRecord{}, eris.Errorf("embedding for article %d without model", rec.ArticleID)
	}
	vec, err := embedding.Normalize(rec.Vector)
	if err != nil {
		return model.EmbeddingRecord{}, eris.Wrapf(err, "embedding for article %d", rec.ArticleID)
	}
	e := model.EmbeddingRecord{
		ArticleID:  rec.ArticleID,
		Model:      rec.Model,
		Dimensions: len(vec),
		Vector:     vec,
	}
	if rec.GeneratedAt != nil {
		e.GeneratedAt = rec.GeneratedAt.UTC()
	}
	return e, nil
}
