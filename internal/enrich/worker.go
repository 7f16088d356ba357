package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/metrics"
	"candidatewatch/internal/ports"
)

// Worker drains the enrichment queue in bounded batches. Each drain claims
// at most batchSize tasks, so a scheduler calling it on a tight loop makes
// steady progress without monopolizing the model budget.
type Worker struct {
	tasks        ports.TaskStore
	store        ports.CanonicalStore
	analyzer     ports.Analyzer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	retryCeiling int
	batchSize    int
	modelTimeout time.Duration
}

// NewWorker wires the drain worker. metrics may be nil in tests.
func NewWorker(
	tasks ports.TaskStore,
	store ports.CanonicalStore,
	analyzer ports.Analyzer,
	m *metrics.Metrics,
	logger *slog.Logger,
	retryCeiling, batchSize int,
	modelTimeout time.Duration,
) *Worker {
	return &Worker{
		tasks:        tasks,
		store:        store,
		analyzer:     analyzer,
		metrics:      m,
		logger:       logger,
		retryCeiling: retryCeiling,
		batchSize:    batchSize,
		modelTimeout: modelTimeout,
	}
}

// Drain claims one batch and processes it to completion. A failing task is
// requeued with a deprioritized rank until it exhausts its attempts, then
// terminally failed; one poisoned task never stalls the rest of the batch.
func (w *Worker) Drain(ctx context.Context) (domain.DrainSummary, error) {
	var summary domain.DrainSummary

	tasks, err := w.tasks.ClaimBatch(ctx, w.batchSize)
	if err != nil {
		return summary, err
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			// Unprocessed claims stay in_progress and will be superseded by
			// operator intervention; the summary reports what actually ran.
			return summary, err
		}
		summary.Processed++
		if w.process(ctx, task) {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if summary.Processed > 0 {
		w.logger.Info("enrichment drain finished",
			"processed", summary.Processed, "succeeded", summary.Succeeded, "failed", summary.Failed)
	}
	return summary, nil
}

func (w *Worker) process(ctx context.Context, task domain.EnrichmentTask) bool {
	callCtx, cancel := context.WithTimeout(ctx, w.modelTimeout)
	defer cancel()

	rec, err := w.store.Get(callCtx, task.SourceType, task.SourceID)
	if errors.Is(err, domain.ErrNotFound) {
		// The record was rewritten away; retrying cannot help.
		w.fail(ctx, task, w.retryCeiling, "record no longer exists")
		return false
	}
	if err != nil {
		return w.retryOrFail(ctx, task, err)
	}

	analysis, err := w.analyzer.Analyze(callCtx, rec)
	if err != nil {
		return w.retryOrFail(ctx, task, err)
	}

	if err := w.store.ApplyAnalysis(ctx, task.SourceType, task.SourceID, analysis); err != nil {
		return w.retryOrFail(ctx, task, err)
	}
	if err := w.tasks.MarkDone(ctx, task.ID); err != nil {
		w.logger.Error("mark done failed", "task", task.ID, "error", err)
		return false
	}

	w.observe("done")
	return true
}

// retryOrFail applies the attempt budget: below the ceiling the task goes
// back to the queue with a worse rank, at the ceiling it fails terminally.
func (w *Worker) retryOrFail(ctx context.Context, task domain.EnrichmentTask, cause error) bool {
	attempts := task.Attempts + 1
	if attempts < w.retryCeiling {
		err := w.tasks.Requeue(ctx, task.ID, attempts, task.Priority+domain.RequeuePenalty, cause.Error())
		if err != nil {
			w.logger.Error("requeue failed", "task", task.ID, "error", err)
		}
		w.observe("requeued")
		w.logger.Warn("enrichment attempt failed",
			"task", task.ID, "attempts", attempts, "error", cause)
		return false
	}
	w.fail(ctx, task, attempts, cause.Error())
	return false
}

func (w *Worker) fail(ctx context.Context, task domain.EnrichmentTask, attempts int, lastError string) {
	if err := w.tasks.MarkFailed(ctx, task.ID, attempts, lastError); err != nil {
		w.logger.Error("mark failed failed", "task", task.ID, "error", err)
	}
	w.observe("failed")
	w.logger.Error("enrichment task terminally failed",
		"task", task.ID, "source_type", task.SourceType, "source_id", task.SourceID, "error", lastError)
}

func (w *Worker) observe(outcome string) {
	if w.metrics != nil {
		w.metrics.TasksProcessed.WithLabelValues(outcome).Inc()
	}
}

// Enqueue exposes the producer side for the trigger endpoint: it queues one
// record for (re-)analysis at the given priority.
func (w *Worker) Enqueue(ctx context.Context, sourceType domain.RecordKind, sourceID int64, priority int) (string, bool, error) {
	if _, err := w.store.Get(ctx, sourceType, sourceID); err != nil {
		return "", false, err
	}
	id, created, err := w.tasks.Enqueue(ctx, sourceType, sourceID, priority)
	if err != nil {
		return "", false, err
	}
	return id.String(), created, nil
}
