//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/harmonize"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/internal/retrieval"
)

type mockLabels struct {
	mock.Mock
}

func (m *mockLabels) Sections(ctx context.Context, codes []string) ([]model.SectionDefinition, error) {
	args := m.Called(ctx, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SectionDefinition), args.Error(1)
}

func (m *mockLabels) HarmonizeLabel(ctx context.Context, product string, jurisdictions, sections []string) (*model.HarmonizedLabel, error) {
	args := m.Called(ctx, product, jurisdictions, sections)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HarmonizedLabel), args.Error(1)
}

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, jurisdictions []string, topK int, threshold float64) ([]model.RetrievedEvidence, error) {
	args := m.Called(ctx, query, jurisdictions, topK, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RetrievedEvidence), args.Error(1)
}

func (m *mockRetriever) Model() string { return "test-embed" }

func newTestRouter(labels *mockLabels, ret *mockRetriever) http.Handler {
	return buildRouter(serverDeps{
		Labels:    labels,
		Retriever: ret,
		Params:    harmonize.Params{TopK: 5, Threshold: 0.5},
		Origins:   []string{"https://regulatorio.example.com"},
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	rr := do(t, newTestRouter(new(mockLabels), new(mockRetriever)), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestSectionsEndpoint(t *testing.T) {
	labels := new(mockLabels)
	labels.On("Sections", mock.Anything, []string{"NOMBRE"}).
		Return([]model.SectionDefinition{{Code: "NOMBRE", Name: "Nombre", DisplayOrder: 1, Active: true}}, nil)

	rr := do(t, newTestRouter(labels, new(mockRetriever)), http.MethodGet, "/v1/sections?codes=NOMBRE", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Sections []model.SectionDefinition `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Sections, 1)
	assert.Equal(t, "NOMBRE", body.Sections[0].Code)
}

func TestSectionsEndpoint_Unknown(t *testing.T) {
	labels := new(mockLabels)
	labels.On("Sections", mock.Anything, []string{"FOO"}).
		Return(nil, &catalog.UnknownSectionsError{Codes: []string{"FOO"}})

	rr := do(t, newTestRouter(labels, new(mockRetriever)), http.MethodGet, "/v1/sections?codes=FOO", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "FOO")
}

func TestRetrieveEndpoint(t *testing.T) {
	ret := new(mockRetriever)
	ret.On("Retrieve", mock.Anything, "advertencias", []string{"CO", "EC"}, 2, 0.5).
		Return([]model.RetrievedEvidence{{ArticleID: 10, JurisdictionCode: "CO", Similarity: 0.9}}, nil)

	rr := do(t, newTestRouter(new(mockLabels), ret), http.MethodPost, "/v1/retrieve",
		map[string]any{"query": "  advertencias ", "jurisdictions": []string{"co", "EC"}, "top_k": 2})
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Evidence []model.RetrievedEvidence `json:"evidence"`
		Model    string                    `json:"model"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Evidence, 1)
	assert.Equal(t, int64(10), body.Evidence[0].ArticleID)
	assert.Equal(t, "test-embed", body.Model)
	ret.AssertExpectations(t)
}

func TestRetrieveEndpoint_Validation(t *testing.T) {
	h := newTestRouter(new(mockLabels), new(mockRetriever))

	rr := do(t, h, http.MethodPost, "/v1/retrieve", map[string]any{"jurisdictions": []string{"CO"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/retrieve", map[string]any{"query": "x", "threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLabelsEndpoint(t *testing.T) {
	labels := new(mockLabels)
	labels.On("HarmonizeLabel", mock.Anything, "Acetaminofén", []string{"CO", "EC"}, []string(nil)).
		Return(&model.HarmonizedLabel{
			ProductName:   "Acetaminofén",
			Jurisdictions: []string{"CO", "EC"},
			Sections:      []model.HarmonizedSection{{Code: "NOMBRE", Policy: model.PolicyMaxRestrictiveness}},
			GeneratedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}, nil)

	rr := do(t, newTestRouter(labels, new(mockRetriever)), http.MethodPost, "/v1/labels",
		map[string]any{"product": "Acetaminofén", "jurisdictions": []string{"CO", "EC"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var label model.HarmonizedLabel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &label))
	assert.Equal(t, "Acetaminofén", label.ProductName)
	require.Len(t, label.Sections, 1)
}

func TestLabelsEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "backend timeout",
			err:        &harmonize.StageError{Section: "ADVERTENCIAS", Stage: harmonize.StageGeneration, Err: &resilience.BackendTimeoutError{Backend: "generation", Timeout: time.Second, Err: context.DeadlineExceeded}},
			wantStatus: http.StatusBadGateway,
			wantStage:  "generation",
		},
		{
			name:       "backend unavailable",
			err:        &harmonize.StageError{Section: "NOMBRE", Stage: harmonize.StageRetrieval, Err: &resilience.BackendUnavailableError{Backend: "embedding", StatusCode: 503, Err: errors.New("503")}},
			wantStatus: http.StatusBadGateway,
			wantStage:  "retrieval",
		},
		{
			name:       "malformed generation",
			err:        &harmonize.StageError{Section: "COMPOSICION", Stage: harmonize.StageParsing, Err: &generation.MalformedGenerationError{Reason: "missing content marker"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantStage:  "parsing",
		},
		{
			name:       "model mismatch",
			err:        &harmonize.StageError{Section: "NOMBRE", Stage: harmonize.StageRetrieval, Err: &retrieval.ModelMismatchError{Model: "x"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantStage:  "retrieval",
		},
		{
			name:       "no jurisdictions",
			err:        harmonize.ErrNoJurisdictions,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "other",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := new(mockLabels)
			labels.On("HarmonizeLabel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rr := do(t, newTestRouter(labels, new(mockRetriever)), http.MethodPost, "/v1/labels",
				map[string]any{"product": "X", "jurisdictions": []string{"CO"}})
			assert.Equal(t, tt.wantStatus, rr.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStage, body.Stage)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestLabelsEndpoint_MissingProduct(t *testing.T) {
	labels := new(mockLabels)
	rr := do(t, newTestRouter(labels, new(mockRetriever)), http.MethodPost, "/v1/labels",
		map[string]any{"jurisdictions": []string{"CO"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	labels.AssertNotCalled(t, "HarmonizeLabel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(new(mockLabels), new(mockRetriever))

	req := httptest.NewRequest(http.MethodOptions, "/v1/labels", nil)
	req.Header.Set("Origin", "https://regulatorio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://regulatorio.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rr := do(t, newTestRouter(new(mockLabels), new(mockRetriever)), http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_LeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, opencensusWorker)

	labels := new(mockLabels)
	labels.On("Sections", mock.Anything, []string(nil)).Return([]model.SectionDefinition{}, nil)

	h := newTestRouter(labels, new(mockRetriever))
	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodGet, "/v1/sections", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
