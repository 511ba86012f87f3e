package store

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// formatVector renders a vector in pgvector's text input format.
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// encodeVector packs a vector as little-endian float32 for SQLite BLOBs.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, eris.Errorf("store: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// dot returns the dot product of a and b, which equals cosine similarity
// for unit vectors. Lengths must match.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clampSimilarity bounds a similarity to [0,1]; float32 rounding can push
// the dot product of unit vectors slightly past 1.
func clampSimilarity(s float64) float64 {
	return math.Max(0, math.Min(1, s))
}
