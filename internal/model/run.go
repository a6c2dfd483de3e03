package model

import "time"

// RunStatus represents the current state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one ingestion run: the queries it searched and, once
// finished, what it produced.
type Run struct {
	ID        string     `json:"id"`
	Queries   []string   `json:"queries"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult counts what an ingestion run did at each stage.
type RunResult struct {
	URLs        int    `json:"urls"`
	Domains     int    `json:"domains"`
	Competitors int    `json:"competitors_skipped"`
	Extracted   int    `json:"extracted"`
	FetchFailed int    `json:"fetch_failed"`
	NoEmail     int    `json:"no_email"`
	Inserted    int    `json:"inserted"`
	Duplicates  int    `json:"duplicates"`
	Error       string `json:"error,omitempty"`
}

// Status returns the terminal status implied by the result.
func (r *RunResult) Status() RunStatus {
	if r == nil || r.Error != "" {
		return RunStatusFailed
	}
	return RunStatusComplete
}
