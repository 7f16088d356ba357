package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// MemoryCanonical keeps canonical records in process memory with the same
// merge semantics as the Postgres upsert.
type MemoryCanonical struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*domain.CanonicalRecord
}

var _ ports.CanonicalStore = (*MemoryCanonical)(nil)

// NewMemoryCanonical builds an empty store.
func NewMemoryCanonical() *MemoryCanonical {
	return &MemoryCanonical{rows: make(map[string]*domain.CanonicalRecord)}
}

func canonicalKey(kind domain.RecordKind, dedupKey string) string {
	return string(kind) + "|" + dedupKey
}

// Upsert inserts or merges under a single lock, so concurrent callers for
// the same key serialize exactly as the SQL conditional write does.
func (m *MemoryCanonical) Upsert(_ context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, ports.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := canonicalKey(rec.Kind, rec.DedupKey)
	existing, ok := m.rows[key]
	if !ok {
		m.nextID++
		rec.ID = m.nextID
		stored := rec
		m.rows[key] = &stored
		return stored, ports.OutcomeCreated, nil
	}

	if !existing.Absorb(rec) {
		return *existing, ports.OutcomeSkipped, nil
	}
	existing.LastSeenAt = rec.LastSeenAt
	return *existing, ports.OutcomeUpdated, nil
}

// Get loads one row by kind and id.
func (m *MemoryCanonical) Get(_ context.Context, kind domain.RecordKind, id int64) (domain.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.rows {
		if rec.Kind == kind && rec.ID == id {
			return *rec, nil
		}
	}
	return domain.CanonicalRecord{}, fmt.Errorf("%s id %d: %w", kind, id, domain.ErrNotFound)
}

// ApplyAnalysis writes enrichment output onto the referenced row.
func (m *MemoryCanonical) ApplyAnalysis(_ context.Context, kind domain.RecordKind, id int64, analysis domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.rows {
		if rec.Kind == kind && rec.ID == id {
			rec.Sentiment = analysis.Sentiment
			rec.Relevance = analysis.Relevance
			rec.DataVerified = analysis.Verified
			rec.Confidence = analysis.Confidence
			rec.AnalyzedAt = analysis.AnalyzedAt
			return nil
		}
	}
	return fmt.Errorf("%s id %d: %w", kind, id, domain.ErrNotFound)
}

// ListByKind pages through rows of one kind in id order.
func (m *MemoryCanonical) ListByKind(_ context.Context, kind domain.RecordKind, limit, offset int) ([]domain.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []domain.CanonicalRecord
	for _, rec := range m.rows {
		if rec.Kind == kind {
			rows = append(rows, *rec)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Rewrite replaces the source/title fields of one row.
func (m *MemoryCanonical) Rewrite(_ context.Context, kind domain.RecordKind, id int64, source, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.rows {
		if rec.Kind == kind && rec.ID == id {
			rec.DataSource = source
			rec.Title = title
			return nil
		}
	}
	return fmt.Errorf("%s id %d: %w", kind, id, domain.ErrNotFound)
}

// Len reports the stored row count; used by tests.
func (m *MemoryCanonical) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
