// Package upsert merges normalized source records into the canonical store
// and feeds the enrichment queue.
package upsert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/normalize"
	"candidatewatch/internal/ports"
)

// rosterPageSize bounds the candidate-roster pages loaded for mention
// matching.
const rosterPageSize = 500

// Engine is the dedup/upsert component. Each record is one conditional
// write; the engine never aborts a batch on a single bad record.
type Engine struct {
	store  ports.CanonicalStore
	tasks  ports.TaskStore
	logger *slog.Logger
}

// NewEngine wires the canonical store and the enrichment queue producer.
func NewEngine(store ports.CanonicalStore, tasks ports.TaskStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, tasks: tasks, logger: logger}
}

// Result aggregates one batch.
type Result struct {
	Processed int
	Created   int
	Updated   int
	Skipped   int
	Errors    []string
}

// Upsert merges the batch record by record. Records without a stable key
// are dropped with a skip reason; created news/social mentions tied to a
// recognized candidate are enqueued for enrichment at default priority.
func (e *Engine) Upsert(ctx context.Context, records []domain.SourceRecord) (Result, error) {
	var result Result
	if len(records) == 0 {
		return result, nil
	}

	roster, err := e.loadRoster(ctx)
	if err != nil {
		// Mention matching degrades gracefully; the merge itself does not
		// depend on the roster.
		e.logger.Warn("candidate roster unavailable, mention matching disabled", "error", err)
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		key, err := normalize.DedupKey(rec)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "skipped: "+err.Error())
			continue
		}

		canonical := normalize.Canonical(rec, key, now)
		if canonical.CandidateName == "" {
			canonical.CandidateName = matchCandidate(roster, canonical.Title, canonical.Body)
		}

		stored, outcome, err := e.store.Upsert(ctx, canonical)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", key[:12], err))
			continue
		}

		switch outcome {
		case ports.OutcomeCreated:
			result.Created++
			e.maybeEnqueue(ctx, stored, &result)
		case ports.OutcomeUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	return result, nil
}

func (e *Engine) maybeEnqueue(ctx context.Context, rec domain.CanonicalRecord, result *Result) {
	if e.tasks == nil || !rec.Enrichable() {
		return
	}
	if _, _, err := e.tasks.Enqueue(ctx, rec.Kind, rec.ID, domain.DefaultTaskPriority); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("enqueue %s/%d: %v", rec.Kind, rec.ID, err))
	}
}

// loadRoster pages through the stored candidate profiles once per batch.
func (e *Engine) loadRoster(ctx context.Context) ([]string, error) {
	var names []string
	for offset := 0; ; offset += rosterPageSize {
		page, err := e.store.ListByKind(ctx, domain.KindCandidateProfile, rosterPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			if rec.CandidateName != "" {
				names = append(names, rec.CandidateName)
			}
		}
		if len(page) < rosterPageSize {
			return names, nil
		}
	}
}

// matchCandidate returns the first roster name mentioned in the text.
// Case-insensitive substring matching is deliberate: sources mangle
// accents and casing far more often than they mangle full names.
func matchCandidate(roster []string, title, body string) string {
	if len(roster) == 0 {
		return ""
	}
	haystack := strings.ToLower(title + " " + body)
	for _, name := range roster {
		if strings.Contains(haystack, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}
