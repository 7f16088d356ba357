package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// MemoryRunLog keeps sync run history in process memory.
type MemoryRunLog struct {
	mu     sync.Mutex
	nextID int64
	rows   []*domain.SyncRunLog
}

var _ ports.RunLogStore = (*MemoryRunLog)(nil)

// NewMemoryRunLog builds an empty store.
func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{}
}

// Claim opens a running row unless one is already active for the source.
// A running row started before staleBefore is closed as failed and
// superseded, mirroring the abandoned-run reconciliation in SQL.
func (m *MemoryRunLog) Claim(_ context.Context, source domain.Source, startedAt, staleBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Source != source || row.Status != domain.RunRunning {
			continue
		}
		if row.StartedAt.Before(staleBefore) {
			row.Status = domain.RunFailed
			row.CompletedAt = startedAt
			row.ErrorMessage = "superseded: run exceeded its wall-clock budget"
			continue
		}
		return 0, fmt.Errorf("source %s: %w", source, domain.ErrRunInProgress)
	}

	m.nextID++
	m.rows = append(m.rows, &domain.SyncRunLog{
		ID:        m.nextID,
		Source:    source,
		Status:    domain.RunRunning,
		StartedAt: startedAt,
	})
	return m.nextID, nil
}

// Close applies the single terminal update to a running row.
func (m *MemoryRunLog) Close(_ context.Context, runID int64, c domain.RunClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.ID != runID {
			continue
		}
		if row.Status != domain.RunRunning {
			return fmt.Errorf("run %d already closed as %s", runID, row.Status)
		}
		row.Status = c.Status
		row.CompletedAt = c.CompletedAt
		row.DurationMs = c.CompletedAt.Sub(row.StartedAt).Milliseconds()
		row.RecordsProcessed = c.RecordsProcessed
		row.RecordsCreated = c.RecordsCreated
		row.RecordsUpdated = c.RecordsUpdated
		row.RecordsSkipped = c.RecordsSkipped
		row.ErrorMessage = c.ErrorMessage
		row.Cursor = c.Cursor
		return nil
	}
	return fmt.Errorf("run %d: %w", runID, domain.ErrNotFound)
}

// LastCursor returns the cursor of the most recent non-failed run.
func (m *MemoryRunLog) LastCursor(_ context.Context, source domain.Source) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor := ""
	var latest time.Time
	for _, row := range m.rows {
		if row.Source != source || row.Cursor == "" {
			continue
		}
		if row.Status != domain.RunSuccess && row.Status != domain.RunPartial {
			continue
		}
		if row.CompletedAt.After(latest) {
			latest = row.CompletedAt
			cursor = row.Cursor
		}
	}
	return cursor, nil
}

// LatestPerSource returns the newest row per source.
func (m *MemoryRunLog) LatestPerSource(_ context.Context) (map[domain.Source]domain.SyncRunLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[domain.Source]domain.SyncRunLog)
	for _, row := range m.rows {
		current, ok := latest[row.Source]
		if !ok || row.StartedAt.After(current.StartedAt) {
			latest[row.Source] = *row
		}
	}
	return latest, nil
}

// List filters and pages the run history, newest first.
func (m *MemoryRunLog) List(_ context.Context, filter domain.RunFilter) ([]domain.SyncRunLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.SyncRunLog
	for _, row := range m.rows {
		if filter.Source != nil && row.Source != *filter.Source {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		matched = append(matched, *row)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}
