package generation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/resilience"
)

// Defaults for harmonization calls. Low temperature keeps output close to
// the evidence.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2000
)

// Result is a parsed section response.
type Result struct {
	Parsed
	Model string
	Usage cost.Usage
}

// Generator renders prompts, calls the backend under a guard and parses the
// response.
type Generator struct {
	backend     Backend
	guard       *resilience.Guard
	limiter     *rate.Limiter
	temperature float64
	maxTokens   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens sets the output token limit.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRequestsPerMinute limits backend calls. Zero means unlimited.
func WithRequestsPerMinute(rpm int) Option {
	return func(g *Generator) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// NewGenerator creates a Generator. A nil guard applies no time bound.
func NewGenerator(backend Backend, guard *resilience.Guard, opts ...Option) *Generator {
	if guard == nil {
		guard = resilience.NewGuard("generation:"+backend.Name(), 0)
	}
	g := &Generator{
		backend:     backend,
		guard:       guard,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Backend returns the name of the generation backend.
func (g *Generator) Backend() string { return g.backend.Name() }

// Generate harmonizes one section from its evidence. Backend failures come
// back as resilience errors; unparseable output as MalformedGenerationError.
func (g *Generator) Generate(ctx context.Context, in SectionInput) (*Result, error) {
	comp, err := g.complete(ctx, SectionPrompt(in))
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(comp.Text)
	if err != nil {
		return nil, err
	}
	return &Result{Parsed: parsed, Model: comp.Model, Usage: comp.Usage}, nil
}

// Report produces the markdown justification report for a label.
func (g *Generator) Report(ctx context.Context, label *model.HarmonizedLabel) (string, cost.Usage, error) {
	comp, err := g.complete(ctx, JustificationPrompt(label))
	if err != nil {
		return "", cost.Usage{}, err
	}
	text := strings.TrimSpace(comp.Text)
	if text == "" {
		return "", comp.Usage, &MalformedGenerationError{Reason: "empty report", Raw: comp.Text}
	}
	return text, comp.Usage, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (*Completion, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "generation: rate limit wait")
		}
	}

	req := Request{
		System:      SystemPrompt,
		Prompt:      prompt,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	comp, err := resilience.Call(ctx, g.guard, func(ctx context.Context) (*Completion, error) {
		return g.backend.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("generation: completion",
		zap.String("backend", g.backend.Name()),
		zap.String("model", comp.Model),
		zap.Int64("input_tokens", comp.Usage.Input),
		zap.Int64("output_tokens", comp.Usage.Output),
		zap.Int("chars", len(comp.Text)),
	)
	return comp, nil
}
