package model

import "time"

// ArticleStatus is the lifecycle status of a normative article.
type ArticleStatus string

const (
	ArticleInForce  ArticleStatus = "in_force"
	ArticleRepealed ArticleStatus = "repealed"
	ArticleAmended  ArticleStatus = "amended"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleInForce, ArticleRepealed, ArticleAmended:
		return true
	}
	return false
}

// Jurisdiction is a national regulatory scope identified by ISO country code.
type Jurisdiction struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// NormativeArticle is an immutable unit of normative text. It is owned by
// the evidence store and read-only during harmonization.
type NormativeArticle struct {
	ID               int64         `json:"id"`
	JurisdictionCode string        `json:"jurisdiction"`
	SourceDocument   string        `json:"source_document"`
	ArticleNumber    string        `json:"article_number"`
	FullText         string        `json:"text"`
	NormalizedText   string        `json:"normalized_text,omitempty"`
	Chapter          string        `json:"chapter,omitempty"`
	Section          string        `json:"section,omitempty"`
	Status           ArticleStatus `json:"status"`
}

// EmbeddingText returns the text that should be vectorized for the article:
// the normalized text when present, otherwise the full text.
func (a NormativeArticle) EmbeddingText() string {
	if a.NormalizedText != "" {
		return a.NormalizedText
	}
	return a.FullText
}

// EmbeddingRecord is the vector for one article under one embedding model.
// At most one record exists per (ArticleID, Model).
type EmbeddingRecord struct {
	ArticleID   int64     `json:"article_id"`
	Model       string    `json:"model"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector"`
	GeneratedAt time.Time `json:"generated_at"`
}
