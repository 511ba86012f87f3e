package harmonize

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/model"
)

// ErrNoJurisdictions is returned when a label is requested without any
// jurisdiction.
var ErrNoJurisdictions = eris.New("harmonize: no jurisdictions")

// RunRecorder persists run history.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, evidenceCount int, errMsg string) error
}

// Orchestrator harmonizes complete labels, one section at a time in catalog
// order.
type Orchestrator struct {
	sections *SectionHarmonizer
	catalog  catalog.Source
	runs     RunRecorder
	calc     *cost.Calculator
	now      func() time.Time
	newID    func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRunRecorder records every run.
func WithRunRecorder(r RunRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.runs = r }
}

// WithCalculator sets the cost calculator used for label metadata.
func WithCalculator(c *cost.Calculator) OrchestratorOption {
	return func(o *Orchestrator) { o.calc = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(h *SectionHarmonizer, src catalog.Source, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sections: h,
		catalog:  src,
		calc:     cost.NewCalculator(cost.DefaultRates()),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sections returns the resolved section list for codes.
func (o *Orchestrator) Sections(ctx context.Context, codes []string) ([]model.SectionDefinition, error) {
	defs, err := o.catalog.Sections(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "harmonize: load section catalog")
	}
	return catalog.Resolve(defs, codes)
}

// HarmonizeLabel harmonizes every requested active section for product
// across jurisdictions. Any section failure aborts the run and no label is
// returned.
func (o *Orchestrator) HarmonizeLabel(ctx context.Context, product string, jurisdictions []string, sectionCodes []string) (*model.HarmonizedLabel, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, eris.New("harmonize: product name is required")
	}
	js := NormalizeJurisdictions(jurisdictions)
	if len(js) == 0 {
		return nil, ErrNoJurisdictions
	}

	defs, err := o.Sections(ctx, sectionCodes)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, eris.New("harmonize: no active sections in catalog")
	}

	start := o.now()
	run := &model.Run{
		ID:                o.newID(),
		ProductName:       product,
		Jurisdictions:     js,
		Sections:          sectionCodesOf(defs),
		EmbeddingModel:    o.sections.retriever.Model(),
		GenerationBackend: o.sections.generator.Backend(),
		Status:            model.RunStatusStarted,
		StartedAt:         start,
	}
	o.createRun(ctx, run)

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("product", product))
	log.Info("harmonize: label started",
		zap.Strings("jurisdictions", js),
		zap.Int("sections", len(defs)),
	)

	var usage cost.Usage
	out := make([]model.HarmonizedSection, 0, len(defs))
	cited := 0
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			o.finishRun(ctx, run.ID, model.RunStatusFailed, cited, err.Error())
			return nil, err
		}

		sectionStart := o.now()
		section, u, err := o.sections.harmonize(ctx, SectionRequest{
			Code:          def.Code,
			Name:          def.Name,
			Description:   def.Description,
			Jurisdictions: js,
		})
		if err != nil {
			log.Error("harmonize: section failed", zap.String("section", def.Code), zap.Error(err))
			o.finishRun(ctx, run.ID, model.RunStatusFailed, cited, err.Error())
			return nil, err
		}

		usage.Add(u)
		cited += len(section.Evidence)
		out = append(out, *section)

		log.Info("harmonize: section complete",
			zap.String("section", def.Code),
			zap.Int("evidence", section.RetrievedCount),
			zap.Int("cited", len(section.Evidence)),
			zap.Bool("insufficient", section.InsufficientEvidence),
			zap.Duration("duration", o.now().Sub(sectionStart)),
		)
	}

	backend := o.sections.generator.Backend()
	label := &model.HarmonizedLabel{
		ProductName:   product,
		Jurisdictions: js,
		Sections:      out,
		GeneratedAt:   o.now(),
		Metadata: model.LabelMetadata{
			RunID:             run.ID,
			EmbeddingModel:    run.EmbeddingModel,
			GenerationBackend: backend,
			SectionCount:      len(out),
			CitedEvidence:     cited,
			InputTokens:       usage.Input,
			OutputTokens:      usage.Output,
			EstimatedCostUSD:  o.calc.Generation(backend, usage),
		},
	}
	label.Metadata.InsufficientSections = len(label.NeedsReview())
	label.Metadata.DurationMs = label.GeneratedAt.Sub(start).Milliseconds()

	o.finishRun(ctx, run.ID, model.RunStatusCompleted, cited, "")
	log.Info("harmonize: label complete",
		zap.Int("sections", len(out)),
		zap.Int("insufficient", label.Metadata.InsufficientSections),
		zap.Int64("input_tokens", usage.Input),
		zap.Int64("output_tokens", usage.Output),
		zap.Float64("estimated_cost_usd", label.Metadata.EstimatedCostUSD),
	)
	return label, nil
}

// JustificationReport asks the generation backend for a markdown analysis
// of a harmonized label.
func (o *Orchestrator) JustificationReport(ctx context.Context, label *model.HarmonizedLabel) (string, error) {
	if label == nil || len(label.Sections) == 0 {
		return "", eris.New("harmonize: report needs a harmonized label")
	}
	md, usage, err := o.sections.generator.Report(ctx, label)
	if err != nil {
		return "", eris.Wrap(err, "harmonize: justification report")
	}
	backend := o.sections.generator.Backend()
	zap.L().Debug("harmonize: justification report",
		zap.String("product", label.ProductName),
		zap.Int64("output_tokens", usage.Output),
		zap.Float64("estimated_cost_usd", o.calc.Generation(backend, usage)),
	)
	return md, nil
}

func (o *Orchestrator) createRun(ctx context.Context, run *model.Run) {
	if o.runs == nil {
		return
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		zap.L().Warn("harmonize: record run start failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, id string, status model.RunStatus, evidence int, msg string) {
	if o.runs == nil {
		return
	}
	// A cancelled run is still recorded.
	ctx = context.WithoutCancel(ctx)
	if err := o.runs.FinishRun(ctx, id, status, evidence, msg); err != nil {
		zap.L().Warn("harmonize: record run finish failed", zap.String("run_id", id), zap.Error(err))
	}
}

// NormalizeJurisdictions upper-cases, trims and de-duplicates codes,
// keeping first-seen order.
func NormalizeJurisdictions(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func sectionCodesOf(defs []model.SectionDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Code
	}
	return out
}
