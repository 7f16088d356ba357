// Package syncrun coordinates one fetch-normalize-merge pass per source.
package syncrun

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/metrics"
	"candidatewatch/internal/ports"
	"candidatewatch/internal/upsert"
)

// Coordinator owns the run lifecycle: claim the run log row, resume from the
// stored cursor, fetch, merge, and close the row exactly once. Concurrency
// control lives in the run log store, not here, so two processes sharing a
// database still serialize per source.
type Coordinator struct {
	adapters  map[domain.Source]ports.SourceAdapter
	runs      ports.RunLogStore
	engine    *upsert.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
	runBudget time.Duration
}

// New wires the coordinator. metrics may be nil in tests.
func New(
	adapters map[domain.Source]ports.SourceAdapter,
	runs ports.RunLogStore,
	engine *upsert.Engine,
	m *metrics.Metrics,
	logger *slog.Logger,
	runBudget time.Duration,
) *Coordinator {
	return &Coordinator{
		adapters:  adapters,
		runs:      runs,
		engine:    engine,
		metrics:   m,
		logger:    logger,
		runBudget: runBudget,
	}
}

// Run executes one sync pass for the source. The claimed run log row is
// closed on every path out of this function, including adapter panics
// surfacing as errors and budget expiry.
func (c *Coordinator) Run(ctx context.Context, source domain.Source) (domain.SyncSummary, error) {
	adapter, ok := c.adapters[source]
	if !ok {
		return domain.SyncSummary{}, domain.ErrUnknownSource
	}

	startedAt := time.Now().UTC()
	staleBefore := startedAt.Add(-2 * c.runBudget)
	runID, err := c.runs.Claim(ctx, source, startedAt, staleBefore)
	if err != nil {
		return domain.SyncSummary{}, err
	}

	c.logger.Info("sync run started", "source", source, "run_id", runID)

	// The close is deferred so the row leaves 'running' even when fetch or
	// merge bails out early. Failed is the default until we know better.
	closeRow := domain.RunClose{Status: domain.RunFailed}
	defer func() {
		closeRow.CompletedAt = time.Now().UTC()
		if err := c.runs.Close(context.WithoutCancel(ctx), runID, closeRow); err != nil {
			c.logger.Error("close run failed", "source", source, "run_id", runID, "error", err)
		}
		if c.metrics != nil {
			c.metrics.ObserveRun(string(source), string(closeRow.Status), closeRow.CompletedAt.Sub(startedAt).Seconds())
		}
		c.logger.Info("sync run finished",
			"source", source, "run_id", runID, "status", closeRow.Status,
			"processed", closeRow.RecordsProcessed, "created", closeRow.RecordsCreated,
			"updated", closeRow.RecordsUpdated, "skipped", closeRow.RecordsSkipped)
	}()

	cursor, err := c.runs.LastCursor(ctx, source)
	if err != nil {
		c.logger.Warn("cursor lookup failed, full fetch", "source", source, "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.runBudget)
	defer cancel()

	result, fetchErr := adapter.Fetch(runCtx, cursor)
	runErrors := append([]string(nil), result.Errors...)
	if fetchErr != nil {
		runErrors = append(runErrors, fetchErr.Error())
	}
	if result.Blocked {
		if c.metrics != nil {
			c.metrics.SourceBlocked.WithLabelValues(string(source)).Inc()
		}
		c.logger.Warn("source rejected the fetch", "source", source)
	}

	merged, mergeErr := c.engine.Upsert(runCtx, result.Records)
	if mergeErr != nil {
		runErrors = append(runErrors, mergeErr.Error())
	}
	runErrors = append(runErrors, merged.Errors...)
	if c.metrics != nil {
		c.metrics.ObserveMerge(string(source), merged.Created, merged.Updated, merged.Skipped)
	}

	closeRow.RecordsProcessed = merged.Processed
	closeRow.RecordsCreated = merged.Created
	closeRow.RecordsUpdated = merged.Updated
	closeRow.RecordsSkipped = merged.Skipped
	closeRow.ErrorMessage = strings.Join(runErrors, "; ")
	closeRow.Cursor = result.Cursor
	closeRow.Status = runStatus(fetchErr, merged.Processed, len(runErrors) > 0 || result.Partial || result.Blocked)

	summary := domain.SyncSummary{
		Source:    source,
		Status:    closeRow.Status,
		Processed: merged.Processed,
		Created:   merged.Created,
		Updated:   merged.Updated,
		Skipped:   merged.Skipped,
		Errors:    runErrors,
	}

	if closeRow.Status == domain.RunFailed {
		if fetchErr != nil {
			return summary, fetchErr
		}
		return summary, mergeErr
	}
	return summary, nil
}

// runStatus maps an outcome to its terminal status: a fetch that produced
// nothing usable is failed, a run that saved anything despite trouble is
// partial, a clean run is success.
func runStatus(fetchErr error, processed int, degraded bool) domain.RunStatus {
	if fetchErr != nil && processed == 0 {
		return domain.RunFailed
	}
	if fetchErr != nil || degraded {
		return domain.RunPartial
	}
	return domain.RunSuccess
}

// Status returns the newest run per source, keyed for the status endpoint.
func (c *Coordinator) Status(ctx context.Context) (map[domain.Source]domain.SyncRunLog, error) {
	return c.runs.LatestPerSource(ctx)
}

// ListRuns pages the run history.
func (c *Coordinator) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.SyncRunLog, int, error) {
	return c.runs.List(ctx, filter)
}

// IsConflict reports whether err is the single-active-run rejection.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrRunInProgress)
}
