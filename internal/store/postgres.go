package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/db"
	"github.com/aalabel/aalabel-cli/internal/model"
)

// PostgresStore implements Store on Postgres with the pgvector extension.
// Nearest-neighbor queries use the cosine distance operator.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	findEvidenceSQL = `SELECT a.id, j.code, j.name, a.source_document, a.article_number, a.full_text,
	1 - (e.embedding <=> $1::vector) AS similarity
FROM article_embeddings e
JOIN normative_articles a ON a.id = e.article_id
JOIN jurisdictions j ON j.code = a.jurisdiction_code
WHERE e.model_name = $2
  AND a.jurisdiction_code = ANY($3)
  AND a.status = $4
  AND 1 - (e.embedding <=> $1::vector) >= $5
ORDER BY similarity DESC, a.id ASC
LIMIT $6`

	embeddingDimensionSQL = `SELECT dimensions FROM article_embeddings WHERE model_name = $1 LIMIT 1`

	upsertEmbeddingSQL = `INSERT INTO article_embeddings (article_id, model_name, dimensions, embedding, generated_at)
VALUES ($1, $2, $3, $4::vector, $5)
ON CONFLICT (article_id, model_name) DO UPDATE SET
	dimensions = EXCLUDED.dimensions,
	embedding = EXCLUDED.embedding,
	generated_at = EXCLUDED.generated_at`

	runColumns = `id, product_name, jurisdictions, sections, embedding_model, generation_backend,
	status, evidence_count, error, started_at, finished_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS jurisdictions (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS normative_articles (
	id                BIGINT PRIMARY KEY,
	jurisdiction_code TEXT NOT NULL REFERENCES jurisdictions(code),
	source_document   TEXT NOT NULL,
	article_number    TEXT NOT NULL,
	full_text         TEXT NOT NULL,
	normalized_text   TEXT NOT NULL DEFAULT '',
	chapter           TEXT NOT NULL DEFAULT '',
	section           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'in_force'
		CHECK (status IN ('in_force', 'repealed', 'amended'))
);

CREATE TABLE IF NOT EXISTS article_embeddings (
	article_id   BIGINT NOT NULL REFERENCES normative_articles(id),
	model_name   TEXT NOT NULL,
	dimensions   INTEGER NOT NULL,
	embedding    vector NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (article_id, model_name)
);

CREATE TABLE IF NOT EXISTS label_sections (
	code          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	display_order INTEGER NOT NULL DEFAULT 0,
	mandatory     BOOLEAN NOT NULL DEFAULT true,
	category      TEXT NOT NULL DEFAULT '',
	active        BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS harmonization_runs (
	id                 TEXT PRIMARY KEY,
	product_name       TEXT NOT NULL,
	jurisdictions      JSONB NOT NULL,
	sections           JSONB NOT NULL,
	embedding_model    TEXT NOT NULL,
	generation_backend TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'started',
	evidence_count     INTEGER NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_articles_jurisdiction_status ON normative_articles(jurisdiction_code, status);
CREATE INDEX IF NOT EXISTS idx_embeddings_model ON article_embeddings(model_name);
CREATE INDEX IF NOT EXISTS idx_runs_status ON harmonization_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_product ON harmonization_runs(product_name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertJurisdictions(ctx context.Context, js []model.Jurisdiction) error {
	rows := make([][]any, len(js))
	for i, j := range js {
		rows[i] = []any{j.Code, j.Name}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "jurisdictions",
		Columns:      []string{"code", "name"},
		ConflictKeys: []string{"code"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert jurisdictions")
}

func (s *PostgresStore) InsertArticles(ctx context.Context, articles []model.NormativeArticle) error {
	rows := make([][]any, len(articles))
	for i, a := range articles {
		rows[i] = []any{a.ID, a.JurisdictionCode, a.SourceDocument, a.ArticleNumber, a.FullText,
			a.NormalizedText, a.Chapter, a.Section, string(a.Status)}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "normative_articles",
		Columns: []string{"id", "jurisdiction_code", "source_document", "article_number", "full_text",
			"normalized_text", "chapter", "section", "status"},
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: insert articles")
}

// InsertEmbeddings writes vectors in one transaction. Vectors go through the
// text input format because COPY has no binary codec for the vector type.
func (s *PostgresStore) InsertEmbeddings(ctx context.Context, records []model.EmbeddingRecord) error {
	for _, r := range records {
		if err := validateEmbedding(r); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: insert embeddings: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range records {
		generated := r.GeneratedAt
		if generated.IsZero() {
			generated = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, upsertEmbeddingSQL,
			r.ArticleID, r.Model, r.Dimensions, formatVector(r.Vector), generated,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert embedding %d/%s", r.ArticleID, r.Model)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: insert embeddings: commit")
}

func (s *PostgresStore) FindEvidence(ctx context.Context, q EvidenceQuery) ([]model.RetrievedEvidence, error) {
	if len(q.Jurisdictions) == 0 {
		return nil, nil
	}
	status := q.Status
	if status == "" {
		status = model.ArticleInForce
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, findEvidenceSQL,
		formatVector(q.Vector), q.Model, q.Jurisdictions, string(status), q.MinSimilarity, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find evidence")
	}
	defer rows.Close()

	var out []model.RetrievedEvidence
	for rows.Next() {
		var ev model.RetrievedEvidence
		if err := rows.Scan(&ev.ArticleID, &ev.JurisdictionCode, &ev.JurisdictionName,
			&ev.SourceDocument, &ev.ArticleNumber, &ev.Text, &ev.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence")
		}
		ev.Similarity = clampSimilarity(ev.Similarity)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: find evidence iterate")
	}
	// Re-sort in process so float rounding in the database can never break
	// the tie order.
	model.SortEvidence(out)
	return out, nil
}

func (s *PostgresStore) EmbeddingDimension(ctx context.Context, modelName string) (int, error) {
	var dims int
	err := s.pool.QueryRow(ctx, embeddingDimensionSQL, modelName).Scan(&dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: embedding dimension for %s", modelName)
	}
	return dims, nil
}

func (s *PostgresStore) CorpusStats(ctx context.Context) (CorpusStats, error) {
	stats := CorpusStats{Embeddings: map[string]int{}}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM jurisdictions), (SELECT count(*) FROM normative_articles)`,
	).Scan(&stats.Jurisdictions, &stats.Articles)
	if err != nil {
		return stats, eris.Wrap(err, "postgres: corpus counts")
	}

	rows, err := s.pool.Query(ctx, `SELECT model_name, count(*) FROM article_embeddings GROUP BY model_name`)
	if err != nil {
		return stats, eris.Wrap(err, "postgres: count embeddings")
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return stats, eris.Wrap(err, "postgres: scan embedding count")
		}
		stats.Embeddings[name] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: count embeddings iterate")
}

func (s *PostgresStore) UpsertSections(ctx context.Context, sections []model.SectionDefinition) error {
	rows := make([][]any, len(sections))
	for i, sec := range sections {
		rows[i] = []any{sec.Code, sec.Name, sec.Description, sec.DisplayOrder, sec.Mandatory, sec.Category, sec.Active}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "label_sections",
		Columns:      []string{"code", "name", "description", "display_order", "mandatory", "category", "active"},
		ConflictKeys: []string{"code"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert sections")
}

func (s *PostgresStore) ListSections(ctx context.Context) ([]model.SectionDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, description, display_order, mandatory, category, active
		 FROM label_sections ORDER BY display_order, code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sections")
	}
	defer rows.Close()

	var out []model.SectionDefinition
	for rows.Next() {
		var sec model.SectionDefinition
		if err := rows.Scan(&sec.Code, &sec.Name, &sec.Description, &sec.DisplayOrder,
			&sec.Mandatory, &sec.Category, &sec.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan section")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sections iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusStarted
	}
	jurisdictions, _ := json.Marshal(run.Jurisdictions)
	sections, _ := json.Marshal(run.Sections)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO harmonization_runs
		   (id, product_name, jurisdictions, sections, embedding_model, generation_backend, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.ProductName, jurisdictions, sections,
		run.EmbeddingModel, run.GenerationBackend, string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, evidenceCount int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE harmonization_runs SET status = $1, evidence_count = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), evidenceCount, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM harmonization_runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM harmonization_runs WHERE true`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.ProductName != "" {
		args = append(args, filter.ProductName)
		query += fmt.Sprintf(` AND product_name = $%d`, len(args))
	}
	if !filter.StartedAfter.IsZero() {
		args = append(args, filter.StartedAfter)
		query += fmt.Sprintf(` AND started_at >= $%d`, len(args))
	}
	args = append(args, defaultLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var jurisdictions, sections []byte
	if err := row.Scan(&r.ID, &r.ProductName, &jurisdictions, &sections, &r.EmbeddingModel,
		&r.GenerationBackend, &r.Status, &r.EvidenceCount, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if err := json.Unmarshal(jurisdictions, &r.Jurisdictions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run jurisdictions")
	}
	if err := json.Unmarshal(sections, &r.Sections); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run sections")
	}
	return &r, nil
}
