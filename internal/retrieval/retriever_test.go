package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/store"
)

const testModel = "test-embed"

type stubEncoder struct {
	model string
	dims  int
	vec   []float32
	err   error
	calls int
}

func (s *stubEncoder) Model() string   { return s.model }
func (s *stubEncoder) Dimensions() int { return s.dims }

func (s *stubEncoder) Encode(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

type countingFinder struct {
	EvidenceFinder
	finds int
	dims  int
}

func (c *countingFinder) FindEvidence(ctx context.Context, q store.EvidenceQuery) ([]model.RetrievedEvidence, error) {
	c.finds++
	if c.EvidenceFinder == nil {
		return nil, nil
	}
	return c.EvidenceFinder.FindEvidence(ctx, q)
}

func (c *countingFinder) EmbeddingDimension(ctx context.Context, name string) (int, error) {
	if c.EvidenceFinder == nil {
		return c.dims, nil
	}
	return c.EvidenceFinder.EmbeddingDimension(ctx, name)
}

// seededStore holds one in-force article per jurisdiction with similarity
// 0.9 (CO) and 0.6 (EC) to the query vector (1, 0), plus a repealed CO
// article with similarity 1.
func seededStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "retrieval.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertJurisdictions(ctx, []model.Jurisdiction{
		{Code: "CO", Name: "Colombia"},
		{Code: "EC", Name: "Ecuador"},
	}))
	require.NoError(t, s.InsertArticles(ctx, []model.NormativeArticle{
		{ID: 10, JurisdictionCode: "CO", SourceDocument: "Decreto 677 de 1995", ArticleNumber: "72", FullText: "Las advertencias deberán figurar en el rotulado.", Status: model.ArticleInForce},
		{ID: 20, JurisdictionCode: "EC", SourceDocument: "Reglamento ARCSA", ArticleNumber: "15", FullText: "Incluir advertencias y precauciones.", Status: model.ArticleInForce},
		{ID: 30, JurisdictionCode: "CO", SourceDocument: "Decreto 677 de 1995", ArticleNumber: "99", FullText: "Derogado.", Status: model.ArticleRepealed},
	}))
	require.NoError(t, s.InsertEmbeddings(ctx, []model.EmbeddingRecord{
		{ArticleID: 10, Model: testModel, Dimensions: 2, Vector: []float32{0.9, 0.43588989}},
		{ArticleID: 20, Model: testModel, Dimensions: 2, Vector: []float32{0.6, 0.8}},
		{ArticleID: 30, Model: testModel, Dimensions: 2, Vector: []float32{1, 0}},
	}))
	return s
}

func queryEncoder() *stubEncoder {
	return &stubEncoder{model: testModel, dims: 2, vec: []float32{1, 0}}
}

func TestRetrieve_ScenarioA(t *testing.T) {
	r := New(queryEncoder(), seededStore(t))

	// top_k 1 inflated by two jurisdictions.
	ev, err := r.Retrieve(context.Background(), "advertencias", []string{"CO", "EC"}, 1*2, 0.5)
	require.NoError(t, err)
	require.Len(t, ev, 2)
	assert.Equal(t, "CO", ev[0].JurisdictionCode)
	assert.Equal(t, "EC", ev[1].JurisdictionCode)
	assert.InDelta(t, 0.9, ev[0].Similarity, 1e-6)
	assert.InDelta(t, 0.6, ev[1].Similarity, 1e-6)
	assert.Equal(t, "Decreto 677 de 1995", ev[0].SourceDocument)
}

func TestRetrieve_ScenarioB(t *testing.T) {
	r := New(queryEncoder(), seededStore(t))

	ev, err := r.Retrieve(context.Background(), "advertencias", []string{"CO", "EC"}, 2, 0.95)
	require.NoError(t, err)
	assert.NotNil(t, ev)
	assert.Empty(t, ev)
}

func TestRetrieve_CapsToTopK(t *testing.T) {
	r := New(queryEncoder(), seededStore(t))

	ev, err := r.Retrieve(context.Background(), "advertencias", []string{"CO", "EC"}, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Equal(t, int64(10), ev[0].ArticleID)
}

func TestRetrieve_RestrictsJurisdictions(t *testing.T) {
	r := New(queryEncoder(), seededStore(t))

	ev, err := r.Retrieve(context.Background(), "advertencias", []string{"EC"}, 5, 0)
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Equal(t, "EC", ev[0].JurisdictionCode)
}

func TestRetrieve_Deterministic(t *testing.T) {
	r := New(queryEncoder(), seededStore(t))
	ctx := context.Background()

	first, err := r.Retrieve(ctx, "advertencias", []string{"EC", "CO"}, 5, 0)
	require.NoError(t, err)
	second, err := r.Retrieve(ctx, "advertencias", []string{"CO", "EC", "CO"}, 5, 0)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("retrieval not deterministic (-first +second):\n%s", diff)
	}
}

func TestRetrieve_EmptyJurisdictions(t *testing.T) {
	t.Parallel()

	enc := queryEncoder()
	finder := &countingFinder{dims: 2}
	r := New(enc, finder)

	ev, err := r.Retrieve(context.Background(), "advertencias", nil, 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, ev)
	assert.NotNil(t, ev)
	assert.Equal(t, 0, enc.calls)
	assert.Equal(t, 0, finder.finds)
}

func TestRetrieve_NoStoredModel(t *testing.T) {
	t.Parallel()

	enc := queryEncoder()
	r := New(enc, &countingFinder{dims: 0})

	_, err := r.Retrieve(context.Background(), "q", []string{"CO"}, 5, 0.5)
	var mm *ModelMismatchError
	require.True(t, errors.As(err, &mm), "got %v", err)
	assert.Equal(t, testModel, mm.Model)
	assert.Contains(t, mm.Error(), "no stored embeddings")
	assert.Equal(t, 0, enc.calls)
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	t.Parallel()

	r := New(queryEncoder(), &countingFinder{dims: 768})

	_, err := r.Retrieve(context.Background(), "q", []string{"CO"}, 5, 0.5)
	var mm *ModelMismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, 768, mm.StoreDimension)
	assert.Equal(t, 2, mm.Dimensions)
}

func TestRetrieve_EncoderErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("encoder down")
	enc := &stubEncoder{model: testModel, dims: 2, err: boom}
	r := New(enc, &countingFinder{dims: 2})

	_, err := r.Retrieve(context.Background(), "q", []string{"CO"}, 5, 0.5)
	assert.ErrorIs(t, err, boom)
}

func TestRetrieve_BadThreshold(t *testing.T) {
	t.Parallel()

	r := New(queryEncoder(), &countingFinder{dims: 2})
	_, err := r.Retrieve(context.Background(), "q", []string{"CO"}, 5, 1.5)
	assert.Error(t, err)
}

func TestRank_FiltersAndOrders(t *testing.T) {
	t.Parallel()

	rows := []model.RetrievedEvidence{
		{ArticleID: 7, JurisdictionCode: "EC", Similarity: 0.7},
		{ArticleID: 3, JurisdictionCode: "CO", Similarity: 0.7},
		{ArticleID: 9, JurisdictionCode: "PE", Similarity: 0.99},
		{ArticleID: 1, JurisdictionCode: "CO", Similarity: 0.4},
		{ArticleID: 3, JurisdictionCode: "CO", Similarity: 0.7},
		{ArticleID: 2, JurisdictionCode: "EC", Similarity: 0.8},
	}
	got := rank(rows, []string{"CO", "EC"}, 0.5, 10)

	ids := make([]int64, len(got))
	for i, ev := range got {
		ids[i] = ev.ArticleID
	}
	assert.Equal(t, []int64{2, 3, 7}, ids)
}
