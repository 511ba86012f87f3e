package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

var evidenceColumns = []string{"id", "code", "name", "source_document", "article_number", "full_text", "similarity"}

func TestPostgresStore_FindEvidence(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`1 - \(e.embedding <=> \$1::vector\) AS similarity`).
		WithArgs("[1,0]", testModel, []string{"CO", "EC"}, "in_force", 0.5, 2).
		WillReturnRows(pgxmock.NewRows(evidenceColumns).
			AddRow(int64(7), "EC", "Ecuador", "Reglamento 586", "15", "ec", 0.6).
			AddRow(int64(1), "CO", "Colombia", "Decreto 677", "72", "co", 0.9))

	ev, err := s.FindEvidence(context.Background(), EvidenceQuery{
		Model:         testModel,
		Jurisdictions: []string{"CO", "EC"},
		Vector:        []float32{1, 0},
		MinSimilarity: 0.5,
		Limit:         2,
	})
	require.NoError(t, err)
	require.Len(t, ev, 2)
	assert.Equal(t, int64(1), ev[0].ArticleID)
	assert.Equal(t, "Colombia", ev[0].JurisdictionName)
	assert.InDelta(t, 0.9, ev[0].Similarity, 1e-9)
	assert.Equal(t, int64(7), ev[1].ArticleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindEvidence_EmptyJurisdictions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ev, err := s.FindEvidence(context.Background(), EvidenceQuery{Model: testModel, Vector: []float32{1}})
	require.NoError(t, err)
	assert.Empty(t, ev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindEvidence_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM article_embeddings e`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("operator does not exist: vector <=> vector"))

	_, err := s.FindEvidence(context.Background(), EvidenceQuery{
		Model: testModel, Jurisdictions: []string{"CO"}, Vector: []float32{1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: find evidence")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EmbeddingDimension(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT dimensions FROM article_embeddings WHERE model_name = \$1`).
		WithArgs("LaBSE").
		WillReturnRows(pgxmock.NewRows([]string{"dimensions"}).AddRow(768))
	mock.ExpectQuery(`SELECT dimensions FROM article_embeddings`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	d, err := s.EmbeddingDimension(context.Background(), "LaBSE")
	require.NoError(t, err)
	assert.Equal(t, 768, d)

	d, err = s.EmbeddingDimension(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertEmbeddings(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO article_embeddings .* VALUES \(\$1, \$2, \$3, \$4::vector, \$5\)`).
		WithArgs(int64(1), testModel, 2, "[0.6,0.8]", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertEmbeddings(context.Background(), []model.EmbeddingRecord{
		{ArticleID: 1, Model: testModel, Dimensions: 2, Vector: []float32{0.6, 0.8}, GeneratedAt: at},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertEmbeddings_RejectsBadDimensions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.InsertEmbeddings(context.Background(), []model.EmbeddingRecord{
		{ArticleID: 1, Model: testModel, Dimensions: 768, Vector: []float32{1}},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertArticles(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_normative_articles"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_normative_articles"},
		[]string{"id", "jurisdiction_code", "source_document", "article_number", "full_text",
			"normalized_text", "chapter", "section", "status"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "normative_articles"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertArticles(context.Background(), []model.NormativeArticle{
		{ID: 1, JurisdictionCode: "BO", SourceDocument: "RM 0123", ArticleNumber: "3", FullText: "x", Status: model.ArticleInForce},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSections(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT code, name, description, display_order, mandatory, category, active\s+FROM label_sections ORDER BY display_order, code`).
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "description", "display_order", "mandatory", "category", "active"}).
			AddRow("NOMBRE", "Nombre", "Denominación", 1, true, "identificacion", true).
			AddRow("ADVERTENCIAS", "Advertencias", "Precauciones", 5, true, "seguridad", true))

	sections, err := s.ListSections(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "NOMBRE", sections[0].Code)
	assert.Equal(t, 5, sections[1].DisplayOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAndFinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO harmonization_runs`).
		WithArgs(pgxmock.AnyArg(), "paracetamol", pgxmock.AnyArg(), pgxmock.AnyArg(),
			testModel, "gemini-2.5-pro", "started", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.Run{ProductName: "paracetamol", EmbeddingModel: testModel, GenerationBackend: "gemini-2.5-pro"}
	require.NoError(t, s.CreateRun(context.Background(), run))
	require.NotEmpty(t, run.ID)

	mock.ExpectExec(`UPDATE harmonization_runs SET status = \$1`).
		WithArgs("completed", 12, "", pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.FinishRun(context.Background(), run.ID, model.RunStatusCompleted, 12, ""))

	mock.ExpectExec(`UPDATE harmonization_runs`).
		WithArgs("failed", 0, "x", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := s.FinishRun(context.Background(), "gone", model.RunStatusFailed, 0, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM harmonization_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
