package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// PostgresRunLog owns the sync_run_log table. The single-active-run rule is
// enforced by a partial unique index on (source) WHERE status = 'running':
// the claim is an insert that either lands or conflicts, never a check
// followed by a write.
type PostgresRunLog struct {
	db *sql.DB
}

var _ ports.RunLogStore = (*PostgresRunLog)(nil)

// NewPostgresRunLog wires a sql.DB implementation.
func NewPostgresRunLog(db *sql.DB) *PostgresRunLog {
	return &PostgresRunLog{db: db}
}

const runLogColumns = `id, source, status, started_at, completed_at, duration_ms,
	records_processed, records_created, records_updated, records_skipped, error_message, cursor`

// Claim supersedes an abandoned running row, then inserts the new running
// row. Both statements share one transaction so two racing claims cannot
// both supersede and both insert.
func (p *PostgresRunLog) Claim(ctx context.Context, source domain.Source, startedAt, staleBefore time.Time) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE sync_run_log
		SET status = 'failed',
		    completed_at = $2,
		    duration_ms = (EXTRACT(EPOCH FROM ($2 - started_at)) * 1000)::bigint,
		    error_message = 'superseded: run exceeded its wall-clock budget'
		WHERE source = $1 AND status = 'running' AND started_at < $3`,
		string(source), startedAt, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("supersede stale run: %w", err)
	}

	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sync_run_log (source, status, started_at)
		VALUES ($1, 'running', $2)
		RETURNING id`,
		string(source), startedAt).Scan(&runID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("source %s: %w", source, domain.ErrRunInProgress)
		}
		return 0, fmt.Errorf("open run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit claim: %w", err)
	}
	return runID, nil
}

// Close applies the terminal update; a row that already left running is not
// touched again.
func (p *PostgresRunLog) Close(ctx context.Context, runID int64, c domain.RunClose) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE sync_run_log
		SET status = $2,
		    completed_at = $3,
		    duration_ms = (EXTRACT(EPOCH FROM ($3 - started_at)) * 1000)::bigint,
		    records_processed = $4,
		    records_created = $5,
		    records_updated = $6,
		    records_skipped = $7,
		    error_message = NULLIF($8, ''),
		    cursor = NULLIF($9, '')
		WHERE id = $1 AND status = 'running'`,
		runID, string(c.Status), c.CompletedAt,
		c.RecordsProcessed, c.RecordsCreated, c.RecordsUpdated, c.RecordsSkipped,
		c.ErrorMessage, c.Cursor)
	if err != nil {
		return fmt.Errorf("close run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d is not running: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// LastCursor returns the cursor of the most recently completed run that
// produced one.
func (p *PostgresRunLog) LastCursor(ctx context.Context, source domain.Source) (string, error) {
	var cursor sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT cursor FROM sync_run_log
		WHERE source = $1 AND status IN ('success', 'partial') AND cursor IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1`,
		string(source)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last cursor for %s: %w", source, err)
	}
	return cursor.String, nil
}

// LatestPerSource returns the newest row per source.
func (p *PostgresRunLog) LatestPerSource(ctx context.Context) (map[domain.Source]domain.SyncRunLog, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT ON (source) %s
		FROM sync_run_log
		ORDER BY source, started_at DESC`, runLogColumns))
	if err != nil {
		return nil, fmt.Errorf("latest per source: %w", err)
	}
	defer rows.Close()

	latest := make(map[domain.Source]domain.SyncRunLog)
	for rows.Next() {
		row, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		latest[row.Source] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return latest, nil
}

// List filters and pages the run history, newest first, with a total count
// for pagination.
func (p *PostgresRunLog) List(ctx context.Context, filter domain.RunFilter) ([]domain.SyncRunLog, int, error) {
	where := sq.And{}
	if filter.Source != nil {
		where = append(where, sq.Eq{"source": string(*filter.Source)})
	}
	if filter.Status != nil {
		where = append(where, sq.Eq{"status": string(*filter.Status)})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("sync_run_log").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := p.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	builder := psql.Select(runLogColumns).
		From("sync_run_log").
		Where(where).
		OrderBy("started_at DESC").
		Offset(uint64(filter.Offset))
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []domain.SyncRunLog
	for rows.Next() {
		row, err := scanRunLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run log: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate run log: %w", err)
	}
	return result, total, nil
}

func scanRunLog(row rowScanner) (domain.SyncRunLog, error) {
	var (
		log                  domain.SyncRunLog
		source, status       string
		completedAt          sql.NullTime
		durationMs           sql.NullInt64
		errorMessage, cursor sql.NullString
	)

	err := row.Scan(
		&log.ID, &source, &status, &log.StartedAt, &completedAt, &durationMs,
		&log.RecordsProcessed, &log.RecordsCreated, &log.RecordsUpdated, &log.RecordsSkipped,
		&errorMessage, &cursor,
	)
	if err != nil {
		return log, err
	}

	log.Source = domain.Source(source)
	log.Status = domain.RunStatus(status)
	log.CompletedAt = fromNullTime(completedAt)
	log.DurationMs = durationMs.Int64
	log.ErrorMessage = errorMessage.String
	log.Cursor = cursor.String
	return log, nil
}
