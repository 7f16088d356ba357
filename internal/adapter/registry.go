package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/ports"
)

// Registry crawls the electoral-authority candidate listing. The listing is
// plain paginated HTML: one table row per candidate with a profile link
// carrying the authority's own candidate id.
type Registry struct {
	cfg    config.ScrapeConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*Registry)(nil)

// NewRegistry wires a paced client from configuration.
func NewRegistry(cfg config.ScrapeConfig, logger *slog.Logger) *Registry {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Registry{
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, cfg.RPS),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (r *Registry) WithClient(c *fetch.Client) *Registry {
	r.client = c
	return r
}

// Source identifies this adapter.
func (r *Registry) Source() domain.Source { return domain.SourceRegistry }

// Fetch walks the listing pages until an empty page, collecting candidate
// profile facts. A page failure after the first page yields partial output.
func (r *Registry) Fetch(ctx context.Context, _ string) (domain.FetchResult, error) {
	var result domain.FetchResult
	now := time.Now().UTC()

	for page := 1; ; page++ {
		pageURL, err := pagedURL(r.cfg.BaseURL, page, r.cfg.PageSize)
		if err != nil {
			return result, fmt.Errorf("registry url: %w", err)
		}

		doc, err := r.client.Document(ctx, pageURL, nil)
		if err != nil {
			if page == 1 {
				return result, err
			}
			result.Partial = true
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}

		rows := r.extractRows(doc, now)
		r.logger.Debug("registry page scanned", "page", page, "rows", len(rows))
		result.Records = append(result.Records, rows...)

		if len(rows) < r.cfg.PageSize {
			return result, nil
		}
	}
}

func (r *Registry) extractRows(doc *goquery.Document, fetchedAt time.Time) []domain.SourceRecord {
	var records []domain.SourceRecord

	doc.Find("table.candidates tbody tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("a[href*=\"/candidate/\"]").First()
		href, _ := link.Attr("href")

		rec := domain.SourceRecord{
			Kind:          domain.KindCandidateProfile,
			SourceName:    string(domain.SourceRegistry),
			FetchedAt:     fetchedAt,
			ExternalID:    candidateIDFromHref(href),
			CandidateName: strings.TrimSpace(link.Text()),
			Party:         strings.TrimSpace(tr.Find("td.party").First().Text()),
			District:      strings.TrimSpace(tr.Find("td.district").First().Text()),
			URL:           href,
		}
		if rec.CandidateName == "" {
			return
		}
		rec.Title = rec.CandidateName
		records = append(records, rec)
	})

	return records
}

func candidateIDFromHref(href string) string {
	if href == "" {
		return ""
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	return parts[len(parts)-1]
}

func pagedURL(base string, page, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}
	q := parsed.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
