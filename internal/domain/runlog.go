package domain

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of one sync run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// ParseRunStatus validates an externally supplied status filter.
func ParseRunStatus(name string) (RunStatus, error) {
	switch RunStatus(name) {
	case RunRunning, RunSuccess, RunPartial, RunFailed:
		return RunStatus(name), nil
	}
	return "", fmt.Errorf("unknown run status %q", name)
}

// SyncRunLog is one row per adapter invocation. Rows are append-only: a run
// is opened as running and receives exactly one terminal update.
type SyncRunLog struct {
	ID               int64
	Source           Source
	Status           RunStatus
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationMs       int64
	RecordsProcessed int
	RecordsCreated   int
	RecordsUpdated   int
	RecordsSkipped   int
	ErrorMessage     string
	Cursor           string
}

// RunClose carries the terminal update for a running row.
type RunClose struct {
	Status           RunStatus
	CompletedAt      time.Time
	RecordsProcessed int
	RecordsCreated   int
	RecordsUpdated   int
	RecordsSkipped   int
	ErrorMessage     string
	Cursor           string
}

// RunFilter narrows ListRuns queries.
type RunFilter struct {
	Source *Source
	Status *RunStatus
	Limit  int
	Offset int
}

// SyncSummary is the operator-visible outcome of one trigger invocation.
type SyncSummary struct {
	Source    Source    `json:"source"`
	Status    RunStatus `json:"status"`
	Processed int       `json:"itemsProcessed"`
	Created   int       `json:"itemsCreated"`
	Updated   int       `json:"itemsUpdated"`
	Skipped   int       `json:"itemsSkipped"`
	Errors    []string  `json:"errors,omitempty"`
}
