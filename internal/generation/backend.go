// Package generation turns ranked evidence into harmonized section text
// through a pluggable text-generation backend.
package generation

import (
	"context"

	"github.com/aalabel/aalabel-cli/internal/cost"
)

// Request is one completion request to a backend.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is the raw text a backend produced plus its token usage.
type Completion struct {
	Text  string
	Model string
	Usage cost.Usage
}

// Backend is a text-generation capability: prompt, temperature and
// max-length in, text out.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
