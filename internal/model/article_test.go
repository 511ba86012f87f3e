package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArticleStatusValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ArticleStatus
		want   bool
	}{
		{ArticleInForce, true},
		{ArticleRepealed, true},
		{ArticleAmended, true},
		{"vigente", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	t.Parallel()

	a := NormativeArticle{FullText: "Artículo 5. Texto   original"}
	assert.Equal(t, "Artículo 5. Texto   original", a.EmbeddingText())

	a.NormalizedText = "articulo 5 texto original"
	assert.Equal(t, "articulo 5 texto original", a.EmbeddingText())
}
