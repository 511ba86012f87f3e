package model

import "time"

// Harmonization policy labels.
const (
	PolicyMaxRestrictiveness = "máxima restrictividad"
	PolicyNotApplicable      = "N/A"
)

// Fixed outputs for sections without qualifying evidence.
const (
	InsufficientEvidenceText          = "[Insuficiente evidencia normativa]"
	InsufficientEvidenceJustification = "No se encontraron artículos relevantes en la base de datos."
)

// SectionDefinition is one entry of the label section catalog.
type SectionDefinition struct {
	Code         string `json:"code" yaml:"code"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
	Mandatory    bool   `json:"mandatory" yaml:"mandatory"`
	Category     string `json:"category,omitempty" yaml:"category"`
	Active       bool   `json:"active" yaml:"active"`
}

// HarmonizedSection is the immutable result of harmonizing one section.
type HarmonizedSection struct {
	Code                 string              `json:"code"`
	Name                 string              `json:"name"`
	Text                 string              `json:"text"`
	Evidence             []RetrievedEvidence `json:"evidence"`
	Justification        string              `json:"justification"`
	Sources              string              `json:"sources,omitempty"`
	Policy               string              `json:"policy"`
	Jurisdictions        []string            `json:"jurisdictions"`
	InsufficientEvidence bool                `json:"insufficient_evidence"`
	RetrievedCount       int                 `json:"retrieved_count"`
}

// LabelMetadata describes how a HarmonizedLabel was produced.
type LabelMetadata struct {
	RunID                string  `json:"run_id,omitempty"`
	EmbeddingModel       string  `json:"embedding_model"`
	GenerationBackend    string  `json:"generation_backend"`
	SectionCount         int     `json:"section_count"`
	InsufficientSections int     `json:"insufficient_sections"`
	CitedEvidence        int     `json:"cited_evidence"`
	InputTokens          int64   `json:"input_tokens"`
	OutputTokens         int64   `json:"output_tokens"`
	EstimatedCostUSD     float64 `json:"estimated_cost_usd"`
	DurationMs           int64   `json:"duration_ms"`
}

// HarmonizedLabel aggregates the harmonized sections for one product.
type HarmonizedLabel struct {
	ProductName   string              `json:"product_name"`
	Jurisdictions []string            `json:"jurisdictions"`
	Sections      []HarmonizedSection `json:"sections"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Metadata      LabelMetadata       `json:"metadata"`
}

// NeedsReview returns the codes of sections carrying sentinel text.
func (l *HarmonizedLabel) NeedsReview() []string {
	var codes []string
	for _, s := range l.Sections {
		if s.InsufficientEvidence {
			codes = append(codes, s.Code)
		}
	}
	return codes
}
