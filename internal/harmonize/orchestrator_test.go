package harmonize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/model"
)

func threeSections() []model.SectionDefinition {
	return []model.SectionDefinition{
		{Code: "ADVERTENCIAS", Name: "Advertencias", Description: "advertencias y precauciones", DisplayOrder: 3, Active: true},
		{Code: "NOMBRE", Name: "Nombre del producto", Description: "denominación", DisplayOrder: 1, Active: true},
		{Code: "PUBLICIDAD", Name: "Publicidad", Description: "material promocional", DisplayOrder: 4, Active: false},
		{Code: "COMPOSICION", Name: "Composición", Description: "principio activo", DisplayOrder: 2, Active: true},
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newTestOrchestrator(ret Retriever, gen Generator, runs *fakeRuns) *Orchestrator {
	h := NewSectionHarmonizer(ret, gen, Params{TopK: 2, Threshold: 0.5})
	opts := []OrchestratorOption{WithClock(fixedClock())}
	if runs != nil {
		opts = append(opts, WithRunRecorder(runs))
	}
	return NewOrchestrator(h, staticCatalog{defs: threeSections()}, opts...)
}

func TestHarmonizeLabel_CatalogOrder(t *testing.T) {
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, []string{"CO", "EC"}, 4, 0.5).
		Return([]model.RetrievedEvidence{ev(1, "CO", 0.9), ev(2, "EC", 0.8)}, nil)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(okResult("Texto."), nil)
	runs := &fakeRuns{}

	o := newTestOrchestrator(ret, gen, runs)
	label, err := o.HarmonizeLabel(context.Background(), "Acetaminofén 500 mg", []string{"co", " EC", "CO"}, nil)
	require.NoError(t, err)
	require.NotNil(t, label)

	require.Len(t, label.Sections, 3)
	assert.Equal(t, "NOMBRE", label.Sections[0].Code)
	assert.Equal(t, "COMPOSICION", label.Sections[1].Code)
	assert.Equal(t, "ADVERTENCIAS", label.Sections[2].Code)
	for _, s := range label.Sections {
		assert.Equal(t, []string{"CO", "EC"}, s.Jurisdictions)
	}
	assert.Equal(t, []string{"CO", "EC"}, label.Jurisdictions)
	assert.Equal(t, "Acetaminofén 500 mg", label.ProductName)

	md := label.Metadata
	assert.Equal(t, "test-embed", md.EmbeddingModel)
	assert.Equal(t, "mock-model", md.GenerationBackend)
	assert.Equal(t, 3, md.SectionCount)
	assert.Equal(t, 6, md.CitedEvidence)
	assert.Equal(t, 0, md.InsufficientSections)
	assert.Equal(t, int64(3000), md.InputTokens)
	assert.Equal(t, int64(600), md.OutputTokens)
	assert.NotEmpty(t, md.RunID)
	assert.Positive(t, md.DurationMs)

	require.Len(t, runs.created, 1)
	assert.Equal(t, md.RunID, runs.created[0].ID)
	assert.Equal(t, []string{"NOMBRE", "COMPOSICION", "ADVERTENCIAS"}, runs.created[0].Sections)
	assert.Equal(t, []model.RunStatus{model.RunStatusCompleted}, runs.finished)
	assert.Equal(t, []int{6}, runs.evidence)
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestHarmonizeLabel_SectionSubset(t *testing.T) {
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.RetrievedEvidence{}, nil)
	gen := new(MockGenerator)

	o := newTestOrchestrator(ret, gen, nil)
	label, err := o.HarmonizeLabel(context.Background(), "X", []string{"PE"}, []string{"ADVERTENCIAS", "NOMBRE"})
	require.NoError(t, err)

	require.Len(t, label.Sections, 2)
	assert.Equal(t, "NOMBRE", label.Sections[0].Code)
	assert.Equal(t, "ADVERTENCIAS", label.Sections[1].Code)
	assert.Equal(t, []string{"NOMBRE", "ADVERTENCIAS"}, label.NeedsReview())
	assert.Equal(t, 2, label.Metadata.InsufficientSections)
	assert.Zero(t, label.Metadata.EstimatedCostUSD)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestHarmonizeLabel_MalformedAbortsRun(t *testing.T) {
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.RetrievedEvidence{ev(1, "CO", 0.9)}, nil)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(in generation.SectionInput) bool {
		return in.SectionName == "Nombre del producto"
	})).Return(okResult("ok"), nil).Once()
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(in generation.SectionInput) bool {
		return in.SectionName == "Composición"
	})).Return(nil, &generation.MalformedGenerationError{Reason: "missing content marker", Raw: "texto libre"}).Once()
	runs := &fakeRuns{}

	o := newTestOrchestrator(ret, gen, runs)
	label, err := o.HarmonizeLabel(context.Background(), "X", []string{"CO", "EC"}, nil)
	require.Error(t, err)
	assert.Nil(t, label)

	var me *generation.MalformedGenerationError
	assert.ErrorAs(t, err, &me)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "COMPOSICION", se.Section)
	assert.Equal(t, StageParsing, se.Stage)

	assert.Equal(t, []model.RunStatus{model.RunStatusFailed}, runs.finished)
	assert.Contains(t, runs.messages[0], "COMPOSICION")
	gen.AssertNumberOfCalls(t, "Generate", 2)
	gen.AssertExpectations(t)
}

func TestHarmonizeLabel_Validation(t *testing.T) {
	tests := []struct {
		name          string
		product       string
		jurisdictions []string
		codes         []string
		wantErr       string
	}{
		{name: "no jurisdictions", product: "X", jurisdictions: []string{" ", ""}, wantErr: "no jurisdictions"},
		{name: "no product", product: "  ", jurisdictions: []string{"CO"}, wantErr: "product name is required"},
		{name: "unknown section", product: "X", jurisdictions: []string{"CO"}, codes: []string{"NOMBRE", "FOO"}, wantErr: "FOO"},
		{name: "inactive section", product: "X", jurisdictions: []string{"CO"}, codes: []string{"PUBLICIDAD"}, wantErr: "PUBLICIDAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := new(MockRetriever)
			runs := &fakeRuns{}
			o := newTestOrchestrator(ret, new(MockGenerator), runs)

			label, err := o.HarmonizeLabel(context.Background(), tt.product, tt.jurisdictions, tt.codes)
			require.Error(t, err)
			assert.Nil(t, label)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, runs.created)
			ret.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHarmonizeLabel_NoJurisdictionsSentinel(t *testing.T) {
	o := newTestOrchestrator(new(MockRetriever), new(MockGenerator), nil)
	_, err := o.HarmonizeLabel(context.Background(), "X", nil, nil)
	assert.ErrorIs(t, err, ErrNoJurisdictions)
}

func TestHarmonizeLabel_CatalogError(t *testing.T) {
	h := NewSectionHarmonizer(new(MockRetriever), new(MockGenerator), Params{TopK: 1, Threshold: 0.5})
	o := NewOrchestrator(h, staticCatalog{err: errors.New("notion down")})

	_, err := o.HarmonizeLabel(context.Background(), "X", []string{"CO"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion down")
}

func TestHarmonizeLabel_RecorderFailureIsNotFatal(t *testing.T) {
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.RetrievedEvidence{}, nil)
	runs := &fakeRuns{err: errors.New("disk full")}

	o := newTestOrchestrator(ret, new(MockGenerator), runs)
	label, err := o.HarmonizeLabel(context.Background(), "X", []string{"CO"}, nil)
	require.NoError(t, err)
	assert.Len(t, label.Sections, 3)
	assert.Len(t, runs.finished, 1)
}

func TestHarmonizeLabel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runs := &fakeRuns{}
	ret := new(MockRetriever)

	o := newTestOrchestrator(ret, new(MockGenerator), runs)
	label, err := o.HarmonizeLabel(ctx, "X", []string{"CO"}, nil)
	require.Error(t, err)
	assert.Nil(t, label)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []model.RunStatus{model.RunStatusFailed}, runs.finished)
	ret.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHarmonizeLabel_EstimatedCost(t *testing.T) {
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.RetrievedEvidence{ev(1, "CO", 0.9)}, nil)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(okResult("x"), nil)

	h := NewSectionHarmonizer(ret, gen, Params{TopK: 1, Threshold: 0.5})
	calc := cost.NewCalculator(cost.Rates{Generation: map[string]cost.ModelRate{
		"mock-model": {Input: 1, Output: 10},
	}})
	o := NewOrchestrator(h, staticCatalog{defs: threeSections()}, WithCalculator(calc))

	label, err := o.HarmonizeLabel(context.Background(), "X", []string{"CO"}, nil)
	require.NoError(t, err)
	// 3000 input at $1/M + 600 output at $10/M
	assert.InDelta(t, 0.009, label.Metadata.EstimatedCostUSD, 1e-9)
}

func TestJustificationReport(t *testing.T) {
	gen := new(MockGenerator)
	label := &model.HarmonizedLabel{
		ProductName: "X",
		Sections:    []model.HarmonizedSection{{Code: "NOMBRE"}},
	}
	gen.On("Report", mock.Anything, label).Return("# Informe", cost.Usage{Output: 50}, nil)

	o := newTestOrchestrator(new(MockRetriever), gen, nil)
	md, err := o.JustificationReport(context.Background(), label)
	require.NoError(t, err)
	assert.Equal(t, "# Informe", md)

	_, err = o.JustificationReport(context.Background(), &model.HarmonizedLabel{})
	assert.Error(t, err)
}

func TestNormalizeJurisdictions(t *testing.T) {
	assert.Equal(t, []string{"CO", "EC", "PE"}, NormalizeJurisdictions([]string{"co", "EC ", "", "Co", "pe"}))
	assert.Empty(t, NormalizeJurisdictions(nil))
}
