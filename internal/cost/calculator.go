// Package cost estimates USD spend from token usage.
package cost

import "strings"

// Rates holds per-model pricing configuration.
type Rates struct {
	Generation map[string]ModelRate `yaml:"generation" mapstructure:"generation"`
	// Embedding maps an embedding model to USD per million input tokens.
	Embedding map[string]float64 `yaml:"embedding" mapstructure:"embedding"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is token consumption of one or more generation calls.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.Input += u2.Input
	u.Output += u2.Output
	u.CacheWrite += u2.CacheWrite
	u.CacheRead += u2.CacheRead
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Generation computes the cost of generation usage under model. Unknown
// models cost 0. Dated model IDs fall back to the longest matching prefix.
func (c *Calculator) Generation(model string, u Usage) float64 {
	rate, ok := c.lookup(model)
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Embedding computes the cost of embedding tokens under model.
func (c *Calculator) Embedding(model string, tokens int64) float64 {
	return (float64(tokens) / 1e6) * c.rates.Embedding[model]
}

func (c *Calculator) lookup(model string) (ModelRate, bool) {
	if rate, ok := c.rates.Generation[model]; ok {
		return rate, true
	}
	var best string
	for name := range c.rates.Generation {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates.Generation[best], true
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Generation: map[string]ModelRate{
			"claude-haiku-4-5": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-1": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
			"gpt-4o-mini":      {Input: 0.15, Output: 0.60},
			"gpt-4o":           {Input: 2.50, Output: 10.00},
		},
		Embedding: map[string]float64{
			"text-embedding-004":   0,
			"gemini-embedding-001": 0.15,
			"jina-embeddings-v3":   0.02,
		},
	}
}

// Merge returns base with every entry of override applied on top.
func Merge(base Rates, override Rates) Rates {
	out := Rates{
		Generation: make(map[string]ModelRate, len(base.Generation)+len(override.Generation)),
		Embedding:  make(map[string]float64, len(base.Embedding)+len(override.Embedding)),
	}
	for k, v := range base.Generation {
		out.Generation[k] = v
	}
	for k, v := range override.Generation {
		out.Generation[k] = v
	}
	for k, v := range base.Embedding {
		out.Embedding[k] = v
	}
	for k, v := range override.Embedding {
		out.Embedding[k] = v
	}
	return out
}
