// Package maintenance holds one-shot repair passes over stored data.
package maintenance

import (
	"context"
	"log/slog"
	"strings"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/normalize"
	"candidatewatch/internal/ports"
)

const fixerPageSize = 200

// Fixer repairs news mentions ingested before aggregator titles were split:
// rows whose data_source is still the aggregator host and whose title still
// embeds the real publisher. Running it twice is a no-op.
type Fixer struct {
	store           ports.CanonicalStore
	logger          *slog.Logger
	aggregatorHosts []string
}

// NewFixer wires the fixer. aggregatorHosts limits the rewrite to rows that
// came through an aggregator; titles from direct feeds legitimately contain
// dashes and must not be split.
func NewFixer(store ports.CanonicalStore, logger *slog.Logger, aggregatorHosts []string) *Fixer {
	if len(aggregatorHosts) == 0 {
		aggregatorHosts = []string{"news.google.com"}
	}
	return &Fixer{store: store, logger: logger, aggregatorHosts: aggregatorHosts}
}

// FixNormalization pages through stored news mentions and rewrites the rows
// that still carry the aggregator echo. It returns the number of rows
// changed.
func (f *Fixer) FixNormalization(ctx context.Context) (int, error) {
	fixed := 0
	for offset := 0; ; offset += fixerPageSize {
		page, err := f.store.ListByKind(ctx, domain.KindNewsMention, fixerPageSize, offset)
		if err != nil {
			return fixed, err
		}

		for _, rec := range page {
			if err := ctx.Err(); err != nil {
				return fixed, err
			}
			if !f.isAggregator(rec.DataSource) {
				continue
			}
			clean, publisher, ok := normalize.SplitPublisher(rec.Title)
			if !ok {
				continue
			}
			if err := f.store.Rewrite(ctx, rec.Kind, rec.ID, publisher, clean); err != nil {
				return fixed, err
			}
			fixed++
			f.logger.Debug("normalization fixed", "id", rec.ID, "publisher", publisher)
		}

		if len(page) < fixerPageSize {
			break
		}
	}

	f.logger.Info("normalization fix pass finished", "rows_fixed", fixed)
	return fixed, nil
}

func (f *Fixer) isAggregator(source string) bool {
	for _, host := range f.aggregatorHosts {
		if strings.Contains(strings.ToLower(source), host) {
			return true
		}
	}
	return false
}
