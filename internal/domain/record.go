package domain

import "time"

// RecordKind discriminates the SourceRecord union and selects the canonical
// table family a record is merged into.
type RecordKind string

const (
	KindCandidateProfile RecordKind = "candidate_record"
	KindFinance          RecordKind = "finance_record"
	KindJudicial         RecordKind = "judicial_record"
	KindNewsMention      RecordKind = "news_mention"
	KindSocialMention    RecordKind = "social_mention"
)

// SourceRecord is the transient, normalized output of one adapter. Only the
// fields relevant to the record's Kind are populated; empty fields mean "the
// source did not supply this", never "clear the stored value".
type SourceRecord struct {
	Kind       RecordKind
	ExternalID string
	SourceName string
	FetchedAt  time.Time

	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt time.Time

	// Candidate/profile payload.
	CandidateName string
	Party         string
	District      string

	// Finance payload.
	Amount   float64
	Currency string

	// Judicial payload.
	CaseNumber string
	Court      string

	// Sentiment placeholder carried from sources that pre-label content;
	// the enrichment worker overwrites it with model output.
	Sentiment string
}

// CanonicalRecord is the persisted, deduplicated form of a SourceRecord.
// At most one row exists per (Kind, DedupKey).
type CanonicalRecord struct {
	ID         int64
	Kind       RecordKind
	DedupKey   string
	DataSource string
	ExternalID string

	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt time.Time

	CandidateName string
	Party         string
	District      string

	Amount   float64
	Currency string

	CaseNumber string
	Court      string

	Sentiment  string
	Relevance  float64
	AnalyzedAt time.Time

	DataVerified bool
	Confidence   float64

	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Merge overlays the fields the incoming record actually supplies onto c and
// reports whether anything changed. Known values are never reverted to their
// zero value by a record that omits them.
func (c *CanonicalRecord) Merge(rec SourceRecord) bool {
	changed := false

	assign := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}

	assign(&c.DataSource, rec.SourceName)
	assign(&c.ExternalID, rec.ExternalID)
	assign(&c.Title, rec.Title)
	assign(&c.Body, rec.Body)
	assign(&c.URL, rec.URL)
	assign(&c.Author, rec.Author)
	assign(&c.CandidateName, rec.CandidateName)
	assign(&c.Party, rec.Party)
	assign(&c.District, rec.District)
	assign(&c.Currency, rec.Currency)
	assign(&c.CaseNumber, rec.CaseNumber)
	assign(&c.Court, rec.Court)
	assign(&c.Sentiment, rec.Sentiment)

	if !rec.PublishedAt.IsZero() && !c.PublishedAt.Equal(rec.PublishedAt) {
		c.PublishedAt = rec.PublishedAt
		changed = true
	}
	if rec.Amount != 0 && c.Amount != rec.Amount {
		c.Amount = rec.Amount
		changed = true
	}

	return changed
}

// Absorb overlays the non-zero fields of in onto c, mirroring Merge for
// already-canonical input. Identity and analysis fields are left alone.
func (c *CanonicalRecord) Absorb(in CanonicalRecord) bool {
	changed := false

	assign := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}

	assign(&c.DataSource, in.DataSource)
	assign(&c.ExternalID, in.ExternalID)
	assign(&c.Title, in.Title)
	assign(&c.Body, in.Body)
	assign(&c.URL, in.URL)
	assign(&c.Author, in.Author)
	assign(&c.CandidateName, in.CandidateName)
	assign(&c.Party, in.Party)
	assign(&c.District, in.District)
	assign(&c.Currency, in.Currency)
	assign(&c.CaseNumber, in.CaseNumber)
	assign(&c.Court, in.Court)
	assign(&c.Sentiment, in.Sentiment)

	if !in.PublishedAt.IsZero() && !c.PublishedAt.Equal(in.PublishedAt) {
		c.PublishedAt = in.PublishedAt
		changed = true
	}
	if in.Amount != 0 && c.Amount != in.Amount {
		c.Amount = in.Amount
		changed = true
	}

	return changed
}

// Enrichable reports whether a created record should be queued for model
// analysis: mentions tied to a recognized candidate.
func (c CanonicalRecord) Enrichable() bool {
	if c.Kind != KindNewsMention && c.Kind != KindSocialMention {
		return false
	}
	return c.CandidateName != ""
}

// Analysis is the enrichment result written back onto a CanonicalRecord.
type Analysis struct {
	Sentiment  string
	Relevance  float64
	Verified   bool
	Confidence float64
	AnalyzedAt time.Time
}

// FetchResult is the adapter contract output. Partial fetches return the
// records obtained before the failure along with the errors encountered;
// Blocked distinguishes active rejection from an empty result.
type FetchResult struct {
	Records []SourceRecord
	Cursor  string
	Partial bool
	Blocked bool
	Errors  []string
}
