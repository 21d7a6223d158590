package models

import "time"

// Run policies.
const (
	// PolicyFailFast aborts the whole batch on the first schema failure.
	PolicyFailFast = "fail-fast"

	// PolicyIsolate records a status per schema and keeps going.
	PolicyIsolate = "isolate"
)

// ValidPolicy reports whether p names a known run policy.
func ValidPolicy(p string) bool {
	return p == PolicyFailFast || p == PolicyIsolate
}

// Site statuses recorded in a RunReport.
const (
	SiteOK       = "ok"
	SiteFailed   = "failed"
	SiteSkipped  = "skipped"
	SiteCanceled = "canceled"
)

// SiteStatus is the outcome of one schema in a batch.
type SiteStatus struct {
	Index      int          `json:"index"`
	Website    string       `json:"website"`
	URL        string       `json:"url"`
	Status     string       `json:"status"`
	Records    int          `json:"records"`
	Attempts   int          `json:"attempts"`
	DurationMs int64        `json:"duration_ms"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	RunID       string       `json:"run_id"`
	Policy      string       `json:"policy"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Records     []JobRecord  `json:"-"`
	Sites       []SiteStatus `json:"sites"`
	SnapshotKey string       `json:"snapshot_key,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// Failed returns the number of sites that did not succeed.
func (r *RunReport) Failed() int {
	n := 0
	for _, s := range r.Sites {
		if s.Status != SiteOK {
			n++
		}
	}
	return n
}

// PersistResponse is the 200 body of GET /scrape when the batch was persisted.
type PersistResponse struct {
	Success bool         `json:"success"`
	RunID   string       `json:"run_id"`
	Key     string       `json:"key"`
	Message string       `json:"message"`
	Records int          `json:"records"`
	Sites   []SiteStatus `json:"sites"`
}

// ErrorResponse is the JSON error body used by middleware and lookup endpoints.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// SessionStats reports browser session activity.
type SessionStats struct {
	MaxSessions    int   `json:"max_sessions"`
	ActiveSessions int   `json:"active_sessions"`
	TotalSessions  int64 `json:"total_sessions"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string       `json:"status"` // "healthy" or "degraded"
	Uptime   string       `json:"uptime"`
	Version  string       `json:"version"`
	Sessions SessionStats `json:"sessions"`
	LastRun  *RunReport   `json:"last_run,omitempty"`
}
