package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// PostgresTask owns the enrichment_task table. Producer dedupe rides on a
// partial unique index on (source_type, source_id) WHERE state IN
// ('queued', 'in_progress'); the claim uses FOR UPDATE SKIP LOCKED so
// concurrent drains never hand the same task to two workers.
type PostgresTask struct {
	db *sql.DB
}

var _ ports.TaskStore = (*PostgresTask)(nil)

// NewPostgresTask wires a sql.DB implementation.
func NewPostgresTask(db *sql.DB) *PostgresTask {
	return &PostgresTask{db: db}
}

const taskColumns = `id, seq, source_type, source_id, priority, state, attempts, last_error, enqueued_at, updated_at`

// Enqueue inserts a queued task or lowers the outstanding task's priority,
// in one statement.
func (p *PostgresTask) Enqueue(ctx context.Context, sourceType domain.RecordKind, sourceID int64, priority int) (uuid.UUID, bool, error) {
	var (
		id      uuid.UUID
		created bool
	)
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO enrichment_task AS t (id, source_type, source_id, priority, state, attempts, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, 'queued', 0, NOW(), NOW())
		ON CONFLICT (source_type, source_id) WHERE state IN ('queued', 'in_progress')
		DO UPDATE SET
			priority = LEAST(t.priority, EXCLUDED.priority),
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS created`,
		uuid.New(), string(sourceType), sourceID, priority).Scan(&id, &created)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("enqueue %s/%d: %w", sourceType, sourceID, err)
	}
	return id, created, nil
}

// ClaimBatch atomically moves up to limit queued tasks to in_progress and
// returns them in (priority, seq) order.
func (p *PostgresTask) ClaimBatch(ctx context.Context, limit int) ([]domain.EnrichmentTask, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		UPDATE enrichment_task
		SET state = 'in_progress', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM enrichment_task
			WHERE state = 'queued'
			ORDER BY priority, seq
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, taskColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var tasks []domain.EnrichmentTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	// RETURNING order is unspecified; restore drain order.
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].Seq < tasks[j].Seq
	})
	return tasks, nil
}

// MarkDone finishes a claimed task.
func (p *PostgresTask) MarkDone(ctx context.Context, id uuid.UUID) error {
	return p.transition(ctx, id, `
		UPDATE enrichment_task
		SET state = 'done', updated_at = NOW()
		WHERE id = $1 AND state = 'in_progress'`, id)
}

// Requeue returns a claimed task to queued with a deprioritized rank.
func (p *PostgresTask) Requeue(ctx context.Context, id uuid.UUID, attempts, priority int, lastError string) error {
	return p.transition(ctx, id, `
		UPDATE enrichment_task
		SET state = 'queued', attempts = $2, priority = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'in_progress'`, id, attempts, priority, lastError)
}

// MarkFailed terminally fails a claimed task.
func (p *PostgresTask) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return p.transition(ctx, id, `
		UPDATE enrichment_task
		SET state = 'failed', attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'in_progress'`, id, attempts, lastError)
}

func (p *PostgresTask) transition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s is not in_progress: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanTask(row rowScanner) (domain.EnrichmentTask, error) {
	var (
		task       domain.EnrichmentTask
		sourceType string
		state      string
		lastError  sql.NullString
	)
	err := row.Scan(
		&task.ID, &task.Seq, &sourceType, &task.SourceID, &task.Priority,
		&state, &task.Attempts, &lastError, &task.EnqueuedAt, &task.UpdatedAt,
	)
	if err != nil {
		return task, err
	}
	task.SourceType = domain.RecordKind(sourceType)
	task.State = domain.TaskState(state)
	task.LastError = lastError.String
	return task, nil
}
