package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// PostgresCanonical persists canonical records, one table per record kind.
// The merge is a single INSERT ... ON CONFLICT statement per record: no
// transient duplicate is ever visible and racing syncs for the same key
// serialize inside Postgres.
type PostgresCanonical struct {
	db *sql.DB
}

var _ ports.CanonicalStore = (*PostgresCanonical)(nil)

// NewPostgresCanonical wires a sql.DB implementation.
func NewPostgresCanonical(db *sql.DB) *PostgresCanonical {
	return &PostgresCanonical{db: db}
}

const canonicalColumns = `id, dedup_key, data_source, external_id, title, body, url, author,
	published_at, candidate_name, party, district, amount, currency, case_number, court,
	sentiment, relevance, analyzed_at, data_verified, confidence, first_seen_at, last_seen_at`

// upsertSQL merges only the fields the new record supplies (NULLIF turns
// empty strings into "keep the stored value") and touches the row only when
// the merged state actually differs, so exact duplicates write nothing and
// return no row.
const upsertSQL = `
INSERT INTO %s AS t (dedup_key, data_source, external_id, title, body, url, author,
	published_at, candidate_name, party, district, amount, currency, case_number, court,
	sentiment, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (dedup_key) DO UPDATE SET
	data_source    = COALESCE(NULLIF(EXCLUDED.data_source, ''), t.data_source),
	external_id    = COALESCE(NULLIF(EXCLUDED.external_id, ''), t.external_id),
	title          = COALESCE(NULLIF(EXCLUDED.title, ''), t.title),
	body           = COALESCE(NULLIF(EXCLUDED.body, ''), t.body),
	url            = COALESCE(NULLIF(EXCLUDED.url, ''), t.url),
	author         = COALESCE(NULLIF(EXCLUDED.author, ''), t.author),
	published_at   = COALESCE(EXCLUDED.published_at, t.published_at),
	candidate_name = COALESCE(NULLIF(EXCLUDED.candidate_name, ''), t.candidate_name),
	party          = COALESCE(NULLIF(EXCLUDED.party, ''), t.party),
	district       = COALESCE(NULLIF(EXCLUDED.district, ''), t.district),
	amount         = CASE WHEN EXCLUDED.amount <> 0 THEN EXCLUDED.amount ELSE t.amount END,
	currency       = COALESCE(NULLIF(EXCLUDED.currency, ''), t.currency),
	case_number    = COALESCE(NULLIF(EXCLUDED.case_number, ''), t.case_number),
	court          = COALESCE(NULLIF(EXCLUDED.court, ''), t.court),
	sentiment      = COALESCE(NULLIF(EXCLUDED.sentiment, ''), t.sentiment),
	last_seen_at   = EXCLUDED.last_seen_at
WHERE
	(t.data_source, t.external_id, t.title, t.body, t.url, t.author, t.candidate_name,
	 t.party, t.district, t.currency, t.case_number, t.court, t.sentiment)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.data_source, ''), t.data_source),
	 COALESCE(NULLIF(EXCLUDED.external_id, ''), t.external_id),
	 COALESCE(NULLIF(EXCLUDED.title, ''), t.title),
	 COALESCE(NULLIF(EXCLUDED.body, ''), t.body),
	 COALESCE(NULLIF(EXCLUDED.url, ''), t.url),
	 COALESCE(NULLIF(EXCLUDED.author, ''), t.author),
	 COALESCE(NULLIF(EXCLUDED.candidate_name, ''), t.candidate_name),
	 COALESCE(NULLIF(EXCLUDED.party, ''), t.party),
	 COALESCE(NULLIF(EXCLUDED.district, ''), t.district),
	 COALESCE(NULLIF(EXCLUDED.currency, ''), t.currency),
	 COALESCE(NULLIF(EXCLUDED.case_number, ''), t.case_number),
	 COALESCE(NULLIF(EXCLUDED.court, ''), t.court),
	 COALESCE(NULLIF(EXCLUDED.sentiment, ''), t.sentiment))
	OR t.published_at IS DISTINCT FROM COALESCE(EXCLUDED.published_at, t.published_at)
	OR (EXCLUDED.amount <> 0 AND t.amount IS DISTINCT FROM EXCLUDED.amount)
RETURNING id, (xmax = 0) AS inserted`

// Upsert merges rec into its kind table. Outcome is derived from the
// statement itself: inserted row, updated row, or no row (exact duplicate).
func (p *PostgresCanonical) Upsert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, ports.UpsertOutcome, error) {
	table, ok := kindTables[rec.Kind]
	if !ok {
		return rec, ports.OutcomeSkipped, fmt.Errorf("no table for kind %q", rec.Kind)
	}

	var (
		id       int64
		inserted bool
	)
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(upsertSQL, table),
		rec.DedupKey,
		nullString(rec.DataSource),
		nullString(rec.ExternalID),
		nullString(rec.Title),
		nullString(rec.Body),
		nullString(rec.URL),
		nullString(rec.Author),
		nullTime(rec.PublishedAt),
		nullString(rec.CandidateName),
		nullString(rec.Party),
		nullString(rec.District),
		rec.Amount,
		nullString(rec.Currency),
		nullString(rec.CaseNumber),
		nullString(rec.Court),
		nullString(rec.Sentiment),
		rec.FirstSeenAt,
		rec.LastSeenAt,
	).Scan(&id, &inserted)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Exact duplicate: nothing written. Resolve the id read-only.
		existing, lookupErr := p.getByDedupKey(ctx, rec.Kind, rec.DedupKey)
		if lookupErr != nil {
			return rec, ports.OutcomeSkipped, lookupErr
		}
		return existing, ports.OutcomeSkipped, nil
	case err != nil:
		return rec, ports.OutcomeSkipped, fmt.Errorf("upsert %s: %w", table, err)
	}

	rec.ID = id
	if inserted {
		return rec, ports.OutcomeCreated, nil
	}
	return rec, ports.OutcomeUpdated, nil
}

func (p *PostgresCanonical) getByDedupKey(ctx context.Context, kind domain.RecordKind, dedupKey string) (domain.CanonicalRecord, error) {
	table := kindTables[kind]
	query, args, err := psql.Select(canonicalColumns).
		From(table).
		Where(sq.Eq{"dedup_key": dedupKey}).
		ToSql()
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("build query: %w", err)
	}
	return p.scanOne(ctx, kind, query, args...)
}

// Get loads one row by kind and id.
func (p *PostgresCanonical) Get(ctx context.Context, kind domain.RecordKind, id int64) (domain.CanonicalRecord, error) {
	table, ok := kindTables[kind]
	if !ok {
		return domain.CanonicalRecord{}, fmt.Errorf("no table for kind %q", kind)
	}
	query, args, err := psql.Select(canonicalColumns).
		From(table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("build query: %w", err)
	}
	return p.scanOne(ctx, kind, query, args...)
}

func (p *PostgresCanonical) scanOne(ctx context.Context, kind domain.RecordKind, query string, args ...any) (domain.CanonicalRecord, error) {
	rec, err := scanCanonical(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CanonicalRecord{}, fmt.Errorf("%s: %w", kind, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("query %s: %w", kind, err)
	}
	rec.Kind = kind
	return rec, nil
}

// ApplyAnalysis writes enrichment output; the worker owns these columns.
func (p *PostgresCanonical) ApplyAnalysis(ctx context.Context, kind domain.RecordKind, id int64, analysis domain.Analysis) error {
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("no table for kind %q", kind)
	}

	query, args, err := psql.Update(table).
		Set("sentiment", nullString(analysis.Sentiment)).
		Set("relevance", analysis.Relevance).
		Set("data_verified", analysis.Verified).
		Set("confidence", analysis.Confidence).
		Set("analyzed_at", nullTime(analysis.AnalyzedAt)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply analysis to %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s id %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

// ListByKind pages through one kind in id order.
func (p *PostgresCanonical) ListByKind(ctx context.Context, kind domain.RecordKind, limit, offset int) ([]domain.CanonicalRecord, error) {
	table, ok := kindTables[kind]
	if !ok {
		return nil, fmt.Errorf("no table for kind %q", kind)
	}

	builder := psql.Select(canonicalColumns).
		From(table).
		OrderBy("id").
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var records []domain.CanonicalRecord
	for rows.Next() {
		rec, err := scanCanonical(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec.Kind = kind
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return records, nil
}

// Rewrite replaces the source/title of one row (normalization fixer path).
func (p *PostgresCanonical) Rewrite(ctx context.Context, kind domain.RecordKind, id int64, source, title string) error {
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("no table for kind %q", kind)
	}

	query, args, err := psql.Update(table).
		Set("data_source", source).
		Set("title", title).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s id %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanonical(row rowScanner) (domain.CanonicalRecord, error) {
	var (
		rec domain.CanonicalRecord

		dataSource, externalID, title, body, urlCol, author       sql.NullString
		candidateName, party, district, currency, caseNum, court  sql.NullString
		sentiment                                                 sql.NullString
		publishedAt, analyzedAt                                   sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.DedupKey, &dataSource, &externalID, &title, &body, &urlCol, &author,
		&publishedAt, &candidateName, &party, &district, &rec.Amount, &currency, &caseNum, &court,
		&sentiment, &rec.Relevance, &analyzedAt, &rec.DataVerified, &rec.Confidence,
		&rec.FirstSeenAt, &rec.LastSeenAt,
	)
	if err != nil {
		return rec, err
	}

	rec.DataSource = dataSource.String
	rec.ExternalID = externalID.String
	rec.Title = title.String
	rec.Body = body.String
	rec.URL = urlCol.String
	rec.Author = author.String
	rec.CandidateName = candidateName.String
	rec.Party = party.String
	rec.District = district.String
	rec.Currency = currency.String
	rec.CaseNumber = caseNum.String
	rec.Court = court.String
	rec.Sentiment = sentiment.String
	rec.PublishedAt = fromNullTime(publishedAt)
	rec.AnalyzedAt = fromNullTime(analyzedAt)
	return rec, nil
}
