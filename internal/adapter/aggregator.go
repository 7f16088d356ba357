package adapter

import (
	"context"
	"log/slog"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/normalize"
	"candidatewatch/internal/ports"
)

// Aggregator ingests an aggregator feed (e.g. news.google.com) whose items
// carry the true publisher inside the title as "<title> - <publisher>". The
// publisher is extracted at ingest time so new rows land clean; rows written
// before this adapter existed are repaired by the normalization fixer.
type Aggregator struct {
	rss *RSS
}

var _ ports.SourceAdapter = (*Aggregator)(nil)

// NewAggregator wires the underlying feed client.
func NewAggregator(cfg config.FeedConfig, logger *slog.Logger) *Aggregator {
	return &Aggregator{rss: NewRSS(domain.SourceNewsAggregator, cfg, logger)}
}

// WithClient overrides the fetch client; used by tests.
func (a *Aggregator) WithClient(c *fetch.Client) *Aggregator {
	a.rss.WithClient(c)
	return a
}

// Source identifies this adapter.
func (a *Aggregator) Source() domain.Source { return domain.SourceNewsAggregator }

// Fetch delegates to the RSS plumbing, then splits publisher suffixes out of
// the titles. The split is a no-op on already-clean titles.
func (a *Aggregator) Fetch(ctx context.Context, sinceCursor string) (domain.FetchResult, error) {
	result, err := a.rss.Fetch(ctx, sinceCursor)
	if err != nil {
		return result, err
	}
	for i := range result.Records {
		normalize.ApplyAggregatorFix(&result.Records[i])
	}
	return result, nil
}
