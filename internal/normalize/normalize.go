package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"candidatewatch/internal/domain"
)

// publisherSeparator is the aggregator pattern: "<title> - <publisher>".
const publisherSeparator = " - "

// DedupKey derives the deterministic identity of a record: the source's own
// external id when present, otherwise a composite of (source, title,
// publishedAt). Records with neither are not keyable and must be skipped.
func DedupKey(rec domain.SourceRecord) (string, error) {
	if rec.ExternalID != "" {
		return hashKey(string(rec.Kind), rec.SourceName, "ext", rec.ExternalID), nil
	}
	if rec.Title != "" && !rec.PublishedAt.IsZero() {
		return hashKey(string(rec.Kind), rec.SourceName, "composite", rec.Title, rec.PublishedAt.UTC().Format(time.RFC3339)), nil
	}
	return "", fmt.Errorf("record from %s has no external id and no (title, publishedAt) composite", rec.SourceName)
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SplitPublisher extracts the true publisher from an aggregator-echoed
// title. Aggregators append the publisher after the last " - " separator;
// when no separator is present the title is already clean and is returned
// unchanged, which makes repeated application a no-op.
func SplitPublisher(title string) (cleanTitle, publisher string, ok bool) {
	idx := strings.LastIndex(title, publisherSeparator)
	if idx <= 0 {
		return title, "", false
	}
	publisher = strings.TrimSpace(title[idx+len(publisherSeparator):])
	cleanTitle = strings.TrimSpace(title[:idx])
	if publisher == "" || cleanTitle == "" {
		return title, "", false
	}
	return cleanTitle, publisher, true
}

// ApplyAggregatorFix rewrites rec in place when its title still embeds the
// publisher. It reports whether anything changed.
func ApplyAggregatorFix(rec *domain.SourceRecord) bool {
	clean, publisher, ok := SplitPublisher(rec.Title)
	if !ok {
		return false
	}
	rec.Title = clean
	rec.SourceName = publisher
	return true
}

// Canonical converts a validated SourceRecord into its canonical form. The
// caller supplies the dedup key so validation happens exactly once.
func Canonical(rec domain.SourceRecord, dedupKey string, now time.Time) domain.CanonicalRecord {
	c := domain.CanonicalRecord{
		Kind:        rec.Kind,
		DedupKey:    dedupKey,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	c.Merge(rec)
	return c
}
