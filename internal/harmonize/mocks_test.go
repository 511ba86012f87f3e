package harmonize

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/model"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, in generation.SectionInput) (*generation.Result, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.Result), args.Error(1)
}

func (m *MockGenerator) Report(ctx context.Context, label *model.HarmonizedLabel) (string, cost.Usage, error) {
	args := m.Called(ctx, label)
	return args.String(0), args.Get(1).(cost.Usage), args.Error(2)
}

func (m *MockGenerator) Backend() string { return "mock-model" }

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, jurisdictions []string, topK int, threshold float64) ([]model.RetrievedEvidence, error) {
	args := m.Called(ctx, query, jurisdictions, topK, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RetrievedEvidence), args.Error(1)
}

func (m *MockRetriever) Model() string { return "test-embed" }

type fakeRuns struct {
	created  []*model.Run
	finished []model.RunStatus
	messages []string
	evidence []int
	err      error
}

func (f *fakeRuns) CreateRun(_ context.Context, run *model.Run) error {
	f.created = append(f.created, run)
	return f.err
}

func (f *fakeRuns) FinishRun(_ context.Context, _ string, status model.RunStatus, evidenceCount int, errMsg string) error {
	f.finished = append(f.finished, status)
	f.evidence = append(f.evidence, evidenceCount)
	f.messages = append(f.messages, errMsg)
	return f.err
}

type staticCatalog struct {
	defs []model.SectionDefinition
	err  error
}

func (s staticCatalog) Sections(context.Context) ([]model.SectionDefinition, error) {
	return s.defs, s.err
}

func okResult(content string) *generation.Result {
	return &generation.Result{
		Parsed: generation.Parsed{
			Content:       content,
			Justification: "Se adopta el requisito más estricto.",
			Sources:       "CO Art. 72",
		},
		Model: "mock-model",
		Usage: cost.Usage{Input: 1000, Output: 200},
	}
}

func ev(id int64, code string, sim float64) model.RetrievedEvidence {
	return model.RetrievedEvidence{
		ArticleID:        id,
		JurisdictionCode: code,
		SourceDocument:   "doc-" + code,
		ArticleNumber:    "1",
		Text:             "texto",
		Similarity:       sim,
	}
}
