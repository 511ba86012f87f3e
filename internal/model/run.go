package model

import "time"

// RunStatus represents the state of a harmonization run.
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one harmonization run as recorded in run history.
type Run struct {
	ID                string     `json:"id"`
	ProductName       string     `json:"product_name"`
	Jurisdictions     []string   `json:"jurisdictions"`
	Sections          []string   `json:"sections"`
	EmbeddingModel    string     `json:"embedding_model"`
	GenerationBackend string     `json:"generation_backend"`
	Status            RunStatus  `json:"status"`
	EvidenceCount     int        `json:"evidence_count"`
	Error             string     `json:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// RunFilter narrows a run history listing.
type RunFilter struct {
	Status       RunStatus
	ProductName  string
	StartedAfter time.Time
	Limit        int
}
