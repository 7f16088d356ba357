package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of an enrichment task.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskInProgress TaskState = "in_progress"
	TaskDone       TaskState = "done"
	TaskFailed     TaskState = "failed"
)

// DefaultTaskPriority is the mid-range priority assigned to auto-enqueued
// work; lower numeric values drain first.
const DefaultTaskPriority = 50

// RequeuePenalty is added to a task's priority when it returns to the queue
// after a failed attempt, so persistently failing items do not starve fresh
// work.
const RequeuePenalty = 10

// EnrichmentTask is one durable "analyze this record" work item. Seq records
// queue-insertion order and breaks priority ties FIFO. Only the worker
// mutates State/Attempts/LastError; producers insert rows or lower Priority.
type EnrichmentTask struct {
	ID         uuid.UUID
	Seq        int64
	SourceType RecordKind
	SourceID   int64
	Priority   int
	State      TaskState
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

// DrainSummary reports one bounded queue-drain batch.
type DrainSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
