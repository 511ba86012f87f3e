package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalabel/aalabel-cli/internal/resilience"
)

type fakeEncoder struct {
	model string
	dims  int
	vec   []float32
	err   error
	delay time.Duration
	calls int
	last  string
}

func (f *fakeEncoder) Model() string   { return f.model }
func (f *fakeEncoder) Dimensions() int { return f.dims }

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	f.last = text
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	_, err = Normalize([]float32{0, 0, 0})
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "ñá", Truncate("ñáé", 2))
}

func TestGuard_NormalizesAndTruncates(t *testing.T) {
	t.Parallel()

	inner := &fakeEncoder{model: "m", dims: 3, vec: []float32{1, 2, 2}}
	enc := Guard(inner, resilience.NewGuard("embedding:test", time.Second))

	long := strings.Repeat("a", MaxInputRunes+100)
	got, err := enc.Encode(context.Background(), long)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(got), 1e-6)
	assert.Len(t, []rune(inner.last), MaxInputRunes)
	assert.Equal(t, "m", enc.Model())
	assert.Equal(t, 3, enc.Dimensions())
}

func TestGuard_DimensionMismatch(t *testing.T) {
	t.Parallel()

	inner := &fakeEncoder{model: "m", dims: 4, vec: []float32{1, 2}}
	enc := Guard(inner, resilience.NewGuard("embedding:test", time.Second))

	_, err := enc.Encode(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 dimensions")
}

func TestGuard_Timeout(t *testing.T) {
	t.Parallel()

	inner := &fakeEncoder{model: "m", dims: 2, vec: []float32{1, 0}, delay: time.Second}
	enc := Guard(inner, resilience.NewGuard("embedding:test", 20*time.Millisecond))

	_, err := enc.Encode(context.Background(), "x")
	var te *resilience.BackendTimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "embedding:test", te.Backend)
}

func TestGuard_TransientIsUnavailable(t *testing.T) {
	t.Parallel()

	inner := &fakeEncoder{model: "m", err: resilience.NewTransientError(errors.New("503"), 503)}
	enc := Guard(inner, resilience.NewGuard("embedding:test", time.Second))

	_, err := enc.Encode(context.Background(), "x")
	var ue *resilience.BackendUnavailableError
	assert.True(t, errors.As(err, &ue), "got %v", err)
}

func TestResolveDimensions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 256, ResolveDimensions("text-embedding-004", 256))
	assert.Equal(t, 768, ResolveDimensions("text-embedding-004", 0))
	assert.Equal(t, 1024, ResolveDimensions("jina-embeddings-v3", 0))
	assert.Equal(t, 0, ResolveDimensions("unknown-model", 0))

	info, ok := Lookup("nomic-embed-text")
	require.True(t, ok)
	assert.Equal(t, "ollama", info.Provider)
}
