// Package embedding maps free text to unit-normalized vectors under a named
// model. Adapters talk to Gemini, Jina or a local Ollama server; every
// vector leaving this package has unit length.
package embedding

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/resilience"
)

// MaxInputRunes bounds the text sent to any embedding backend.
const MaxInputRunes = 2048

// ErrZeroVector is returned when a backend produces an all-zero vector.
var ErrZeroVector = eris.New("embedding: zero vector")

// Encoder maps text to a fixed-dimension unit vector under one model.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// Normalize returns v scaled to unit L2 length.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// guarded wraps a raw adapter with the per-call time bound, error
// classification, input truncation, normalization and a dimension check.
type guarded struct {
	inner Encoder
	guard *resilience.Guard
}

// Guard wraps e so that every call is bounded and classified by g and every
// result is a unit vector of e.Dimensions() components.
func Guard(e Encoder, g *resilience.Guard) Encoder {
	return &guarded{inner: e, guard: g}
}

func (g *guarded) Model() string   { return g.inner.Model() }
func (g *guarded) Dimensions() int { return g.inner.Dimensions() }

func (g *guarded) Encode(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text, MaxInputRunes)
	raw, err := resilience.Call(ctx, g.guard, func(ctx context.Context) ([]float32, error) {
		return g.inner.Encode(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if dims := g.inner.Dimensions(); dims > 0 && len(raw) != dims {
		return nil, eris.Errorf("embedding: %s returned %d dimensions, expected %d", g.inner.Model(), len(raw), dims)
	}
	return Normalize(raw)
}
