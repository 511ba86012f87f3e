package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Generation: map[string]ModelRate{
			"haiku": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"sonnet": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"sonnet-long": {Input: 6.00, Output: 22.50},
		},
		Embedding: map[string]float64{"jina": 0.02},
	}
}

func TestGeneration(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			usage: Usage{Input: 1000000, Output: 100000},
			want:  0.80 + 0.40,
		},
		{
			name:  "haiku with cache",
			model: "haiku",
			usage: Usage{Input: 500000, Output: 50000, CacheWrite: 200000, CacheRead: 300000},
			// in 0.40, out 0.20, cw 0.20, cr 0.024
			want: 0.824,
		},
		{
			name:  "dated id matches prefix",
			model: "sonnet-20250929",
			usage: Usage{Input: 1000000},
			want:  3.00,
		},
		{
			name:  "longest prefix wins",
			model: "sonnet-long-context",
			usage: Usage{Output: 1000000},
			want:  22.50,
		},
		{
			name:  "unknown model",
			model: "mystery",
			usage: Usage{Input: 1000000},
			want:  0,
		},
		{
			name:  "zero tokens",
			model: "sonnet",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Generation(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestEmbedding(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.02, calc.Embedding("jina", 1000000), 1e-9)
	assert.InDelta(t, 0, calc.Embedding("unknown", 1000000), 1e-9)
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()

	u := Usage{Input: 1, Output: 2}
	u.Add(Usage{Input: 10, Output: 20, CacheWrite: 3, CacheRead: 4})
	assert.Equal(t, Usage{Input: 11, Output: 22, CacheWrite: 3, CacheRead: 4}, u)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	merged := Merge(DefaultRates(), Rates{
		Generation: map[string]ModelRate{"gpt-4o": {Input: 1, Output: 2}, "local-llama": {}},
		Embedding:  map[string]float64{"nomic-embed-text": 0},
	})
	assert.Equal(t, ModelRate{Input: 1, Output: 2}, merged.Generation["gpt-4o"])
	assert.Contains(t, merged.Generation, "local-llama")
	assert.Contains(t, merged.Generation, "claude-sonnet-4-5")
	assert.Contains(t, merged.Embedding, "nomic-embed-text")
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	got := calc.Generation("claude-sonnet-4-5-20250929", Usage{Input: 1000000, Output: 1000000})
	assert.InDelta(t, 18.0, got, 1e-9)
}
