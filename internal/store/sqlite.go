package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Nearest-neighbor
// queries are a linear scan over the model's vectors.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jurisdictions (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS normative_articles (
	id                INTEGER PRIMARY KEY,
	jurisdiction_code TEXT NOT NULL REFERENCES jurisdictions(code),
	source_document   TEXT NOT NULL,
	article_number    TEXT NOT NULL,
	full_text         TEXT NOT NULL,
	normalized_text   TEXT NOT NULL DEFAULT '',
	chapter           TEXT NOT NULL DEFAULT '',
	section           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'in_force'
);

CREATE TABLE IF NOT EXISTS article_embeddings (
	article_id   INTEGER NOT NULL REFERENCES normative_articles(id),
	model_name   TEXT NOT NULL,
	dimensions   INTEGER NOT NULL,
	vector       BLOB NOT NULL,
	generated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (article_id, model_name)
);

CREATE TABLE IF NOT EXISTS label_sections (
	code          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	display_order INTEGER NOT NULL DEFAULT 0,
	mandatory     INTEGER NOT NULL DEFAULT 1,
	category      TEXT NOT NULL DEFAULT '',
	active        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS harmonization_runs (
	id                 TEXT PRIMARY KEY,
	product_name       TEXT NOT NULL,
	jurisdictions      TEXT NOT NULL,
	sections           TEXT NOT NULL,
	embedding_model    TEXT NOT NULL,
	generation_backend TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'started',
	evidence_count     INTEGER NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	started_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_articles_jurisdiction_status ON normative_articles(jurisdiction_code, status);
CREATE INDEX IF NOT EXISTS idx_embeddings_model ON article_embeddings(model_name);
CREATE INDEX IF NOT EXISTS idx_runs_status ON harmonization_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_product ON harmonization_runs(product_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertJurisdictions(ctx context.Context, js []model.Jurisdiction) error {
	return s.inTx(ctx, "upsert jurisdictions", func(tx *sql.Tx) error {
		for _, j := range js {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO jurisdictions (code, name) VALUES (?, ?)
				 ON CONFLICT (code) DO UPDATE SET name = excluded.name`,
				j.Code, j.Name,
			); err != nil {
				return eris.Wrapf(err, "jurisdiction %s", j.Code)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) InsertArticles(ctx context.Context, articles []model.NormativeArticle) error {
	return s.inTx(ctx, "insert articles", func(tx *sql.Tx) error {
		for _, a := range articles {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO normative_articles
				   (id, jurisdiction_code, source_document, article_number, full_text, normalized_text, chapter, section, status)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET
				   jurisdiction_code = excluded.jurisdiction_code,
				   source_document = excluded.source_document,
				   article_number = excluded.article_number,
				   full_text = excluded.full_text,
				   normalized_text = excluded.normalized_text,
				   chapter = excluded.chapter,
				   section = excluded.section,
				   status = excluded.status`,
				a.ID, a.JurisdictionCode, a.SourceDocument, a.ArticleNumber, a.FullText,
				a.NormalizedText, a.Chapter, a.Section, string(a.Status),
			); err != nil {
				return eris.Wrapf(err, "article %d", a.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) InsertEmbeddings(ctx context.Context, records []model.EmbeddingRecord) error {
	for _, r := range records {
		if err := validateEmbedding(r); err != nil {
			return err
		}
	}
	return s.inTx(ctx, "insert embeddings", func(tx *sql.Tx) error {
		for _, r := range records {
			generated := r.GeneratedAt
			if generated.IsZero() {
				generated = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO article_embeddings (article_id, model_name, dimensions, vector, generated_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (article_id, model_name) DO UPDATE SET
				   dimensions = excluded.dimensions,
				   vector = excluded.vector,
				   generated_at = excluded.generated_at`,
				r.ArticleID, r.Model, r.Dimensions, encodeVector(r.Vector), generated,
			); err != nil {
				return eris.Wrapf(err, "embedding %d/%s", r.ArticleID, r.Model)
			}
		}
		return nil
	})
}

// FindEvidence scans every vector stored for the model within the requested
// jurisdictions and status, scoring each by dot product.
func (s *SQLiteStore) FindEvidence(ctx context.Context, q EvidenceQuery) ([]model.RetrievedEvidence, error) {
	if len(q.Jurisdictions) == 0 {
		return nil, nil
	}
	status := q.Status
	if status == "" {
		status = model.ArticleInForce
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Jurisdictions)), ",")
	args := []any{q.Model, string(status)}
	for _, j := range q.Jurisdictions {
		args = append(args, j)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, j.code, j.name, a.source_document, a.article_number, a.full_text, e.vector
		 FROM article_embeddings e
		 JOIN normative_articles a ON a.id = e.article_id
		 JOIN jurisdictions j ON j.code = a.jurisdiction_code
		 WHERE e.model_name = ? AND a.status = ? AND a.jurisdiction_code IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find evidence")
	}
	defer rows.Close()

	var out []model.RetrievedEvidence
	for rows.Next() {
		var ev model.RetrievedEvidence
		var blob []byte
		if err := rows.Scan(&ev.ArticleID, &ev.JurisdictionCode, &ev.JurisdictionName,
			&ev.SourceDocument, &ev.ArticleNumber, &ev.Text, &blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence")
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if len(vec) != len(q.Vector) {
			return nil, eris.Errorf("sqlite: article %d has %d dimensions under %s, query has %d",
				ev.ArticleID, len(vec), q.Model, len(q.Vector))
		}
		ev.Similarity = clampSimilarity(dot(q.Vector, vec))
		if ev.Similarity < q.MinSimilarity {
			continue
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: find evidence iterate")
	}

	model.SortEvidence(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *SQLiteStore) EmbeddingDimension(ctx context.Context, modelName string) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM article_embeddings WHERE model_name = ? LIMIT 1`, modelName,
	).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: embedding dimension for %s", modelName)
	}
	return dims, nil
}

func (s *SQLiteStore) CorpusStats(ctx context.Context) (CorpusStats, error) {
	stats := CorpusStats{Embeddings: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM jurisdictions`).Scan(&stats.Jurisdictions); err != nil {
		return stats, eris.Wrap(err, "sqlite: count jurisdictions")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM normative_articles`).Scan(&stats.Articles); err != nil {
		return stats, eris.Wrap(err, "sqlite: count articles")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT model_name, count(*) FROM article_embeddings GROUP BY model_name`)
	if err != nil {
		return stats, eris.Wrap(err, "sqlite: count embeddings")
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return stats, eris.Wrap(err, "sqlite: scan embedding count")
		}
		stats.Embeddings[name] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: count embeddings iterate")
}

func (s *SQLiteStore) UpsertSections(ctx context.Context, sections []model.SectionDefinition) error {
	return s.inTx(ctx, "upsert sections", func(tx *sql.Tx) error {
		for _, sec := range sections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO label_sections (code, name, description, display_order, mandatory, category, active)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (code) DO UPDATE SET
				   name = excluded.name,
				   description = excluded.description,
				   display_order = excluded.display_order,
				   mandatory = excluded.mandatory,
				   category = excluded.category,
				   active = excluded.active`,
				sec.Code, sec.Name, sec.Description, sec.DisplayOrder, sec.Mandatory, sec.Category, sec.Active,
			); err != nil {
				return eris.Wrapf(err, "section %s", sec.Code)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListSections(ctx context.Context) ([]model.SectionDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, description, display_order, mandatory, category, active
		 FROM label_sections ORDER BY display_order, code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sections")
	}
	defer rows.Close()

	var out []model.SectionDefinition
	for rows.Next() {
		var sec model.SectionDefinition
		if err := rows.Scan(&sec.Code, &sec.Name, &sec.Description, &sec.DisplayOrder,
			&sec.Mandatory, &sec.Category, &sec.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan section")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sections iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO harmonization_runs
		   (id, product_name, jurisdictions, sections, embedding_model, generation_backend, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProductName, string(jurisdictions), string(sections),
		run.EmbeddingModel, run.GenerationBackend, string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, evidenceCount int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE harmonization_runs SET status = ?, evidence_count = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), evidenceCount, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return nil
}

const sqliteRunColumns = `id, product_name, jurisdictions, sections, embedding_model, generation_backend,
	status, evidence_count, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM harmonization_runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM harmonization_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProductName != "" {
		query += ` AND product_name = ?`
		args = append(args, filter.ProductName)
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var jurisdictions, sections string
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.ProductName, &jurisdictions, &sections, &r.EmbeddingModel,
		&r.GenerationBackend, &r.Status, &r.EvidenceCount, &r.Error, &r.StartedAt, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(jurisdictions), &r.Jurisdictions); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run jurisdictions")
	}
	if err := json.Unmarshal([]byte(sections), &r.Sections); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run sections")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin", op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return eris.Wrapf(err, "sqlite: %s", op)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", op)
}
