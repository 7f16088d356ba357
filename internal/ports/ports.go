package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"candidatewatch/internal/domain"
)

// SourceAdapter pulls fresh records from one external provider. Fetch must
// return whatever records it obtained even when a later page failed; it
// reports those failures inside FetchResult rather than erroring, and only
// returns a non-nil error when the source could not be contacted at all.
type SourceAdapter interface {
	Source() domain.Source
	Fetch(ctx context.Context, sinceCursor string) (domain.FetchResult, error)
}

// UpsertOutcome classifies one canonical write.
type UpsertOutcome int

const (
	OutcomeSkipped UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
)

// CanonicalStore persists deduplicated records. Upsert must be a single
// conditional insert-or-update per key: safe under concurrent invocation,
// never exposing a transient duplicate row.
type CanonicalStore interface {
	// Upsert merges rec into the row matching (rec.Kind, rec.DedupKey),
	// inserting when absent. The returned record carries the stored ID.
	Upsert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, UpsertOutcome, error)

	// Get loads one row by kind and id; domain.ErrNotFound when absent.
	Get(ctx context.Context, kind domain.RecordKind, id int64) (domain.CanonicalRecord, error)

	// ApplyAnalysis writes enrichment output onto the referenced row.
	ApplyAnalysis(ctx context.Context, kind domain.RecordKind, id int64, analysis domain.Analysis) error

	// ListByKind pages through rows of one kind for maintenance passes.
	ListByKind(ctx context.Context, kind domain.RecordKind, limit, offset int) ([]domain.CanonicalRecord, error)

	// Rewrite replaces the mutable source/title fields of one row. Used by
	// the normalization fixer; regular syncs go through Upsert.
	Rewrite(ctx context.Context, kind domain.RecordKind, id int64, source, title string) error
}

// RunLogStore owns the sync_run_log table. Claim enforces the
// single-active-run rule: it either opens a running row for the source or
// fails with domain.ErrRunInProgress. A running row started before
// staleBefore is treated as abandoned, closed as failed, and superseded.
type RunLogStore interface {
	Claim(ctx context.Context, source domain.Source, startedAt, staleBefore time.Time) (int64, error)
	Close(ctx context.Context, runID int64, close domain.RunClose) error
	LastCursor(ctx context.Context, source domain.Source) (string, error)
	LatestPerSource(ctx context.Context) (map[domain.Source]domain.SyncRunLog, error)
	List(ctx context.Context, filter domain.RunFilter) ([]domain.SyncRunLog, int, error)
}

// TaskStore owns the enrichment_task table. The durable table is the source
// of truth for queue order: (priority, seq) ascending.
type TaskStore interface {
	// Enqueue inserts a queued task unless a queued/in_progress task for
	// (sourceType, sourceID) exists, in which case it lowers that task's
	// priority to min(existing, requested) and reports created=false.
	Enqueue(ctx context.Context, sourceType domain.RecordKind, sourceID int64, priority int) (uuid.UUID, bool, error)

	// ClaimBatch atomically moves up to limit queued tasks to in_progress
	// and returns them in drain order.
	ClaimBatch(ctx context.Context, limit int) ([]domain.EnrichmentTask, error)

	// MarkDone finishes a claimed task.
	MarkDone(ctx context.Context, id uuid.UUID) error

	// Requeue returns a claimed task to queued with the given attempt count
	// and deprioritized rank.
	Requeue(ctx context.Context, id uuid.UUID, attempts, priority int, lastError string) error

	// MarkFailed terminally fails a claimed task.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
}

// Analyzer calls the external reasoning model for one stored record.
type Analyzer interface {
	Analyze(ctx context.Context, rec domain.CanonicalRecord) (domain.Analysis, error)
}
