package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// MetricsSnapshot holds a point-in-time view of harmonization health.
type MetricsSnapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsInFlight  int     `json:"runs_in_flight"`
	FailRate      float64 `json:"fail_rate"`
	EvidenceTotal int     `json:"evidence_total"`

	// StaleRuns are runs still marked started after the stale cutoff.
	StaleRuns []string `json:"stale_runs,omitempty"`

	// FailedByProduct counts failures per product name.
	FailedByProduct map[string]int `json:"failed_by_product,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run history.
type Collector struct {
	runs     RunLister
	staleFor time.Duration
	now      func() time.Time
}

// NewCollector creates a new metrics collector. Runs still started after
// staleFor count as stale; zero disables the check.
func NewCollector(runs RunLister, staleFor time.Duration) *Collector {
	return &Collector{runs: runs, staleFor: staleFor, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	runs, err := c.runs.ListRuns(ctx, model.RunFilter{
		StartedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		snap.EvidenceTotal += r.EvidenceCount
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusFailed:
			snap.RunsFailed++
			if snap.FailedByProduct == nil {
				snap.FailedByProduct = make(map[string]int)
			}
			snap.FailedByProduct[r.ProductName]++
		case model.RunStatusStarted:
			snap.RunsInFlight++
			if c.staleFor > 0 && now.Sub(r.StartedAt) > c.staleFor {
				snap.StaleRuns = append(snap.StaleRuns, r.ID)
			}
		}
	}

	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
