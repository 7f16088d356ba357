package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidatewatch/internal/domain"
)

func TestMemoryRunLogClaimRejectsActiveRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryRunLog()
	now := time.Now().UTC()
	stale := now.Add(-8 * time.Minute)

	runID, err := s.Claim(ctx, domain.SourceNewsRSS, now, stale)
	require.NoError(t, err)
	require.NotZero(t, runID)

	_, err = s.Claim(ctx, domain.SourceNewsRSS, now.Add(time.Second), stale)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	// A different source is unaffected.
	_, err = s.Claim(ctx, domain.SourceRegistry, now, stale)
	assert.NoError(t, err)
}

func TestMemoryRunLogClaimSupersedesStaleRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryRunLog()

	opened := time.Now().UTC().Add(-30 * time.Minute)
	oldID, err := s.Claim(ctx, domain.SourceNewsRSS, opened, opened.Add(-time.Minute))
	require.NoError(t, err)

	now := time.Now().UTC()
	newID, err := s.Claim(ctx, domain.SourceNewsRSS, now, now.Add(-8*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	latest, err := s.LatestPerSource(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, latest[domain.SourceNewsRSS].Status)

	runs, _, err := s.List(ctx, domain.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Oldest row was closed as failed with the supersede note.
	superseded := runs[1]
	assert.Equal(t, oldID, superseded.ID)
	assert.Equal(t, domain.RunFailed, superseded.Status)
	assert.Contains(t, superseded.ErrorMessage, "superseded")
}

func TestMemoryRunLogCloseIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryRunLog()
	started := time.Now().UTC()

	runID, err := s.Claim(ctx, domain.SourceFinance, started, started.Add(-8*time.Minute))
	require.NoError(t, err)

	done := domain.RunClose{
		Status:           domain.RunSuccess,
		CompletedAt:      started.Add(90 * time.Second),
		RecordsProcessed: 10,
		RecordsCreated:   4,
		RecordsUpdated:   3,
		RecordsSkipped:   3,
		Cursor:           "t9",
	}
	require.NoError(t, s.Close(ctx, runID, done))

	// A second close must not rewrite history.
	assert.Error(t, s.Close(ctx, runID, domain.RunClose{Status: domain.RunFailed, CompletedAt: started.Add(time.Hour)}))

	latest, err := s.LatestPerSource(ctx)
	require.NoError(t, err)
	row := latest[domain.SourceFinance]
	assert.Equal(t, domain.RunSuccess, row.Status)
	assert.Equal(t, int64(90_000), row.DurationMs)
	assert.Equal(t, 10, row.RecordsProcessed)

	assert.ErrorIs(t, s.Close(ctx, 9999, done), domain.ErrNotFound)
}

func TestMemoryRunLogLastCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryRunLog()
	base := time.Now().UTC().Add(-time.Hour)
	stale := base.Add(-8 * time.Minute)

	open := func(startedAt time.Time, c domain.RunClose) {
		id, err := s.Claim(ctx, domain.SourceFinance, startedAt, stale)
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx, id, c))
	}

	open(base, domain.RunClose{Status: domain.RunSuccess, CompletedAt: base.Add(time.Minute), Cursor: "t1"})
	open(base.Add(10*time.Minute), domain.RunClose{Status: domain.RunPartial, CompletedAt: base.Add(11 * time.Minute), Cursor: "t2"})
	// Failed runs never advance the cursor.
	open(base.Add(20*time.Minute), domain.RunClose{Status: domain.RunFailed, CompletedAt: base.Add(21 * time.Minute), Cursor: "bogus"})

	cursor, err := s.LastCursor(ctx, domain.SourceFinance)
	require.NoError(t, err)
	assert.Equal(t, "t2", cursor)

	none, err := s.LastCursor(ctx, domain.SourceRegistry)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRunLogListFiltersAndPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryRunLog()
	base := time.Now().UTC().Add(-time.Hour)
	stale := base.Add(-8 * time.Minute)

	sources := []domain.Source{domain.SourceNewsRSS, domain.SourceNewsRSS, domain.SourceFinance}
	statuses := []domain.RunStatus{domain.RunSuccess, domain.RunFailed, domain.RunSuccess}
	for i := range sources {
		startedAt := base.Add(time.Duration(i) * time.Minute)
		id, err := s.Claim(ctx, sources[i], startedAt, stale)
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx, id, domain.RunClose{Status: statuses[i], CompletedAt: startedAt.Add(time.Second)}))
	}

	src := domain.SourceNewsRSS
	runs, total, err := s.List(ctx, domain.RunFilter{Source: &src})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt), "newest first")

	status := domain.RunFailed
	runs, total, err = s.List(ctx, domain.RunFilter{Source: &src, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunFailed, runs[0].Status)

	runs, total, err = s.List(ctx, domain.RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 1)
}
