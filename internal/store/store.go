// Package store provides memory and Postgres implementations of the three
// durable stores. The memory variants carry the same conditional-write
// semantics as the SQL and back the test suites; Postgres is what runs in
// production.
package store

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"candidatewatch/internal/domain"
)

// psql builds Postgres-flavored queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// kindTables maps each record kind to its canonical table. The map is the
// full closed set; it is never extended from user input.
var kindTables = map[domain.RecordKind]string{
	domain.KindCandidateProfile: "candidate_record",
	domain.KindFinance:          "finance_record",
	domain.KindJudicial:         "judicial_record",
	domain.KindNewsMention:      "news_mention",
	domain.KindSocialMention:    "social_mention",
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
