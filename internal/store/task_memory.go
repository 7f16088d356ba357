package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// MemoryTask keeps the enrichment queue in process memory. The map is the
// task arena; drain order is computed from (priority, seq) on each claim,
// matching the SQL ORDER BY rather than maintaining a separate heap.
type MemoryTask struct {
	mu      sync.Mutex
	nextSeq int64
	tasks   map[uuid.UUID]*domain.EnrichmentTask
}

var _ ports.TaskStore = (*MemoryTask)(nil)

// NewMemoryTask builds an empty store.
func NewMemoryTask() *MemoryTask {
	return &MemoryTask{tasks: make(map[uuid.UUID]*domain.EnrichmentTask)}
}

// Enqueue inserts a queued task, or lowers the priority of the outstanding
// task for the same (sourceType, sourceID).
func (m *MemoryTask) Enqueue(_ context.Context, sourceType domain.RecordKind, sourceID int64, priority int) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.SourceType != sourceType || t.SourceID != sourceID {
			continue
		}
		if t.State != domain.TaskQueued && t.State != domain.TaskInProgress {
			continue
		}
		if priority < t.Priority {
			t.Priority = priority
			t.UpdatedAt = time.Now().UTC()
		}
		return t.ID, false, nil
	}

	m.nextSeq++
	now := time.Now().UTC()
	task := &domain.EnrichmentTask{
		ID:         uuid.New(),
		Seq:        m.nextSeq,
		SourceType: sourceType,
		SourceID:   sourceID,
		Priority:   priority,
		State:      domain.TaskQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	m.tasks[task.ID] = task
	return task.ID, true, nil
}

// ClaimBatch moves up to limit queued tasks to in_progress in drain order.
func (m *MemoryTask) ClaimBatch(_ context.Context, limit int) ([]domain.EnrichmentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var queued []*domain.EnrichmentTask
	for _, t := range m.tasks {
		if t.State == domain.TaskQueued {
			queued = append(queued, t)
		}
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].Priority != queued[j].Priority {
			return queued[i].Priority < queued[j].Priority
		}
		return queued[i].Seq < queued[j].Seq
	})
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]domain.EnrichmentTask, 0, len(queued))
	for _, t := range queued {
		t.State = domain.TaskInProgress
		t.UpdatedAt = now
		claimed = append(claimed, *t)
	}
	return claimed, nil
}

// MarkDone finishes a claimed task.
func (m *MemoryTask) MarkDone(_ context.Context, id uuid.UUID) error {
	return m.transition(id, domain.TaskDone, 0, -1, "")
}

// Requeue returns a claimed task to queued with a deprioritized rank.
func (m *MemoryTask) Requeue(_ context.Context, id uuid.UUID, attempts, priority int, lastError string) error {
	return m.transition(id, domain.TaskQueued, attempts, priority, lastError)
}

// MarkFailed terminally fails a claimed task.
func (m *MemoryTask) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string) error {
	return m.transition(id, domain.TaskFailed, attempts, -1, lastError)
}

func (m *MemoryTask) transition(id uuid.UUID, state domain.TaskState, attempts, priority int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if t.State != domain.TaskInProgress {
		return fmt.Errorf("task %s is %s, not in_progress", id, t.State)
	}

	t.State = state
	t.UpdatedAt = time.Now().UTC()
	if attempts > 0 {
		t.Attempts = attempts
	}
	if priority >= 0 {
		t.Priority = priority
	}
	if lastError != "" {
		t.LastError = lastError
	}
	return nil
}

// Get returns one task by id; used by tests.
func (m *MemoryTask) Get(id uuid.UUID) (domain.EnrichmentTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.EnrichmentTask{}, false
	}
	return *t, true
}
