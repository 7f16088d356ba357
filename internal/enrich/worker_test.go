package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/logging"
	"candidatewatch/internal/store"
)

// scriptedAnalyzer fails a fixed number of times before succeeding.
type scriptedAnalyzer struct {
	failures int
	calls    int
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, _ domain.CanonicalRecord) (domain.Analysis, error) {
	a.calls++
	if a.calls <= a.failures {
		return domain.Analysis{}, errors.New("model unavailable")
	}
	return domain.Analysis{
		Sentiment:  "neutral",
		Relevance:  0.7,
		Verified:   true,
		Confidence: 0.8,
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

type workerFixture struct {
	worker    *Worker
	canonical *store.MemoryCanonical
	tasks     *store.MemoryTask
	analyzer  *scriptedAnalyzer
}

func newWorkerFixture(t *testing.T, failures, retryCeiling int) *workerFixture {
	t.Helper()
	canonical := store.NewMemoryCanonical()
	tasks := store.NewMemoryTask()
	analyzer := &scriptedAnalyzer{failures: failures}
	worker := NewWorker(tasks, canonical, analyzer, nil, logging.New("error"), retryCeiling, 20, 5*time.Second)
	return &workerFixture{worker: worker, canonical: canonical, tasks: tasks, analyzer: analyzer}
}

func (f *workerFixture) seedMention(t *testing.T, key string) domain.CanonicalRecord {
	t.Helper()
	now := time.Now().UTC()
	stored, _, err := f.canonical.Upsert(context.Background(), domain.CanonicalRecord{
		Kind:          domain.KindNewsMention,
		DedupKey:      key,
		DataSource:    "news.example.org",
		Title:         "Story about Maria Lopez",
		CandidateName: "Maria Lopez",
		FirstSeenAt:   now,
		LastSeenAt:    now,
	})
	require.NoError(t, err)
	return stored
}

func TestDrainSuccess(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 0, 3)
	rec := f.seedMention(t, "m-1")

	id, _, err := f.tasks.Enqueue(context.Background(), rec.Kind, rec.ID, domain.DefaultTaskPriority)
	require.NoError(t, err)

	summary, err := f.worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DrainSummary{Processed: 1, Succeeded: 1, Failed: 0}, summary)

	task, ok := f.tasks.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskDone, task.State)

	got, err := f.canonical.Get(context.Background(), rec.Kind, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "neutral", got.Sentiment)
	assert.Equal(t, 0.7, got.Relevance)
	assert.True(t, got.DataVerified)
	assert.False(t, got.AnalyzedAt.IsZero())
}

func TestDrainRequeuesWithPenalty(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 1, 3)
	rec := f.seedMention(t, "m-1")

	id, _, err := f.tasks.Enqueue(context.Background(), rec.Kind, rec.ID, domain.DefaultTaskPriority)
	require.NoError(t, err)

	summary, err := f.worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DrainSummary{Processed: 1, Succeeded: 0, Failed: 1}, summary)

	task, ok := f.tasks.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskQueued, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, domain.DefaultTaskPriority+domain.RequeuePenalty, task.Priority)
	assert.Contains(t, task.LastError, "model unavailable")

	// The second drain picks it back up and succeeds.
	summary, err = f.worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	task, _ = f.tasks.Get(id)
	assert.Equal(t, domain.TaskDone, task.State)
}

func TestDrainFailsTerminallyAtCeiling(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 100, 3)
	rec := f.seedMention(t, "m-1")

	id, _, err := f.tasks.Enqueue(context.Background(), rec.Kind, rec.ID, domain.DefaultTaskPriority)
	require.NoError(t, err)

	// Three drains: two requeues, then the terminal failure.
	for i := 0; i < 3; i++ {
		_, err := f.worker.Drain(context.Background())
		require.NoError(t, err)
	}

	task, ok := f.tasks.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskFailed, task.State)
	assert.Equal(t, 3, task.Attempts)

	// A fourth drain finds nothing to do.
	summary, err := f.worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestDrainFailsVanishedRecordWithoutRetry(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 0, 3)

	// Task points at a record that does not exist.
	id, _, err := f.tasks.Enqueue(context.Background(), domain.KindNewsMention, 999, domain.DefaultTaskPriority)
	require.NoError(t, err)

	summary, err := f.worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DrainSummary{Processed: 1, Succeeded: 0, Failed: 1}, summary)

	task, ok := f.tasks.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskFailed, task.State)
	assert.Zero(t, f.analyzer.calls, "no model call for a vanished record")
}

func TestDrainBatchIsBounded(t *testing.T) {
	t.Parallel()

	canonical := store.NewMemoryCanonical()
	tasks := store.NewMemoryTask()
	worker := NewWorker(tasks, canonical, &scriptedAnalyzer{}, nil, logging.New("error"), 3, 2, 5*time.Second)

	f := &workerFixture{worker: worker, canonical: canonical, tasks: tasks}
	for _, key := range []string{"a", "b", "c"} {
		rec := f.seedMention(t, key)
		_, _, err := tasks.Enqueue(context.Background(), rec.Kind, rec.ID, domain.DefaultTaskPriority)
		require.NoError(t, err)
	}

	summary, err := worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed, "one drain honors the batch size")

	summary, err = worker.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
}

func TestEnqueueValidatesRecord(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 0, 3)
	rec := f.seedMention(t, "m-1")

	id, created, err := f.worker.Enqueue(context.Background(), rec.Kind, rec.ID, 10)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	_, _, err = f.worker.Enqueue(context.Background(), domain.KindNewsMention, 999, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
