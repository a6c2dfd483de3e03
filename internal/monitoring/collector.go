// Package monitoring tracks lead store health, exposes Prometheus metrics
// and raises webhook alerts when ingestion runs go wrong.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/model"
)

// maxRunsScanned bounds how much run history one snapshot reads.
const maxRunsScanned = 1000

// Snapshot holds a point-in-time view of lead store health.
type Snapshot struct {
	// Store totals.
	Leads      int `json:"leads"`
	Suppressed int `json:"suppressed"`
	Eligible   int `json:"eligible"`

	// Ingestion runs within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunsNoURLs    int     `json:"runs_no_urls"`
	RunFailRate   float64 `json:"run_fail_rate"`
	LeadsInserted int     `json:"leads_inserted"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the slice of the store the collector reads.
type Source interface {
	Count(ctx context.Context) (int, error)
	CountSuppressed(ctx context.Context) (int, error)
	Candidates(ctx context.Context) ([]string, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	src     Source
	nowFunc func() time.Time
}

// NewCollector creates a new snapshot collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, nowFunc: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.nowFunc().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	var err error
	if snap.Leads, err = c.src.Count(ctx); err != nil {
		return nil, eris.Wrap(err, "monitoring: count leads")
	}
	if snap.Suppressed, err = c.src.CountSuppressed(ctx); err != nil {
		return nil, eris.Wrap(err, "monitoring: count suppressed")
	}
	eligible, err := c.src.Candidates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list candidates")
	}
	snap.Eligible = len(eligible)

	runs, err := c.src.ListRuns(ctx, maxRunsScanned)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	if len(runs) > 0 {
		last := runs[0].CreatedAt
		snap.LastRunAt = &last
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result != nil {
			snap.LeadsInserted += r.Result.Inserted
			if r.Status == model.RunStatusComplete && r.Result.URLs == 0 {
				snap.RunsNoURLs++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	return snap, nil
}
