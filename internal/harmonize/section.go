// Package harmonize couples retrieval and generation into per-section and
// per-label harmonization runs.
package harmonize

import (
	"context"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/retrieval"
)

// Retriever ranks evidence for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, jurisdictions []string, topK int, threshold float64) ([]model.RetrievedEvidence, error)
	Model() string
}

// Generator produces harmonized text from evidence.
type Generator interface {
	Generate(ctx context.Context, in generation.SectionInput) (*generation.Result, error)
	Report(ctx context.Context, label *model.HarmonizedLabel) (string, cost.Usage, error)
	Backend() string
}

// State is a step of the per-section state machine.
type State string

const (
	StateRetrieving    State = "RETRIEVING"
	StateEmptyEvidence State = "EMPTY_EVIDENCE"
	StateEvidenceFound State = "EVIDENCE_FOUND"
	StateGenerating    State = "GENERATING"
	StateDone          State = "DONE"
)

// SectionRequest identifies one section to harmonize. TopK of zero uses
// the configured value for the section.
type SectionRequest struct {
	Code          string
	Name          string
	Description   string
	Jurisdictions []string
	TopK          int
}

// SectionHarmonizer runs RETRIEVING → (EMPTY_EVIDENCE | EVIDENCE_FOUND) →
// GENERATING → DONE for one section.
type SectionHarmonizer struct {
	retriever Retriever
	generator Generator
	defaults  Params
	overrides Overrides
	observe   func(section string, s State)
}

// SectionOption configures a SectionHarmonizer.
type SectionOption func(*SectionHarmonizer)

// WithOverrides sets per-section retrieval parameters.
func WithOverrides(o Overrides) SectionOption {
	return func(h *SectionHarmonizer) { h.overrides = o }
}

// WithStateObserver registers a callback for state transitions.
func WithStateObserver(fn func(section string, s State)) SectionOption {
	return func(h *SectionHarmonizer) { h.observe = fn }
}

// NewSectionHarmonizer creates a SectionHarmonizer.
func NewSectionHarmonizer(r Retriever, g Generator, defaults Params, opts ...SectionOption) *SectionHarmonizer {
	h := &SectionHarmonizer{
		retriever: r,
		generator: g,
		defaults:  defaults,
		overrides: Overrides{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Params returns the effective retrieval parameters for a section code.
func (h *SectionHarmonizer) Params(code string) Params {
	return h.overrides.For(code, h.defaults)
}

// HarmonizeSection harmonizes one section. Errors are *StageError.
func (h *SectionHarmonizer) HarmonizeSection(ctx context.Context, req SectionRequest) (*model.HarmonizedSection, error) {
	s, _, err := h.harmonize(ctx, req)
	return s, err
}

func (h *SectionHarmonizer) harmonize(ctx context.Context, req SectionRequest) (*model.HarmonizedSection, cost.Usage, error) {
	p := h.Params(req.Code)
	if req.TopK > 0 {
		p.TopK = req.TopK
	}
	if err := p.Validate(); err != nil {
		return nil, cost.Usage{}, &StageError{Section: req.Code, Stage: StageRetrieval, Err: err}
	}
	jurisdictions := append([]string(nil), req.Jurisdictions...)

	h.transition(req.Code, StateRetrieving)
	query := retrieval.QueryText(req.Name, req.Description)
	evidence, err := h.retriever.Retrieve(ctx, query, jurisdictions, p.TopK*len(jurisdictions), p.Threshold)
	if err != nil {
		return nil, cost.Usage{}, &StageError{Section: req.Code, Stage: StageRetrieval, Err: err}
	}

	if len(evidence) == 0 {
		h.transition(req.Code, StateEmptyEvidence)
		h.transition(req.Code, StateDone)
		return &model.HarmonizedSection{
			Code:                 req.Code,
			Name:                 req.Name,
			Text:                 model.InsufficientEvidenceText,
			Evidence:             []model.RetrievedEvidence{},
			Justification:        model.InsufficientEvidenceJustification,
			Policy:               model.PolicyNotApplicable,
			Jurisdictions:        jurisdictions,
			InsufficientEvidence: true,
		}, cost.Usage{}, nil
	}

	h.transition(req.Code, StateEvidenceFound)
	h.transition(req.Code, StateGenerating)
	res, err := h.generator.Generate(ctx, generation.SectionInput{
		SectionName:   req.Name,
		Description:   req.Description,
		Jurisdictions: jurisdictions,
		Evidence:      evidence,
	})
	if err != nil {
		return nil, cost.Usage{}, &StageError{Section: req.Code, Stage: generationStage(err), Err: err}
	}

	cited := evidence
	if len(cited) > p.TopK {
		cited = cited[:p.TopK]
	}
	h.transition(req.Code, StateDone)

	return &model.HarmonizedSection{
		Code:           req.Code,
		Name:           req.Name,
		Text:           res.Content,
		Evidence:       append([]model.RetrievedEvidence(nil), cited...),
		Justification:  res.Justification,
		Sources:        res.Sources,
		Policy:         model.PolicyMaxRestrictiveness,
		Jurisdictions:  jurisdictions,
		RetrievedCount: len(evidence),
	}, res.Usage, nil
}

func (h *SectionHarmonizer) transition(code string, s State) {
	if h.observe != nil {
		h.observe(code, s)
	}
}
