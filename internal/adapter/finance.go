package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/ports"
)

// Finance pulls campaign-finance declarations from the authority's JSON API.
// The API pages with an opaque token; the token of the last fully ingested
// page is persisted as the run cursor so the next run resumes instead of
// re-reading the whole history.
type Finance struct {
	cfg    config.APIConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*Finance)(nil)

// NewFinance wires the API client from configuration.
func NewFinance(cfg config.APIConfig, logger *slog.Logger) *Finance {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &Finance{
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, 0),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (f *Finance) WithClient(c *fetch.Client) *Finance {
	f.client = c
	return f
}

// Source identifies this adapter.
func (f *Finance) Source() domain.Source { return domain.SourceFinance }

type financePage struct {
	NextToken    string `json:"next_token"`
	Declarations []struct {
		ID        string  `json:"id"`
		Candidate string  `json:"candidate_name"`
		Party     string  `json:"party"`
		Concept   string  `json:"concept"`
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		FiledAt   string  `json:"filed_at"`
		URL       string  `json:"url"`
	} `json:"declarations"`
}

// Fetch pages forward from sinceCursor. A mid-pagination failure keeps the
// records already obtained and reports the cursor of the last good page.
func (f *Finance) Fetch(ctx context.Context, sinceCursor string) (domain.FetchResult, error) {
	if f.cfg.APIKey == "" {
		return domain.FetchResult{}, fmt.Errorf("finance api key missing: %w", domain.ErrSourceUnavailable)
	}

	result := domain.FetchResult{Cursor: sinceCursor}
	headers := map[string]string{"Authorization": "Bearer " + f.cfg.APIKey}
	now := time.Now().UTC()
	token := sinceCursor

	for {
		pageURL, err := f.pageURL(token)
		if err != nil {
			return result, fmt.Errorf("finance url: %w", err)
		}

		var page financePage
		if err := f.client.JSON(ctx, pageURL, headers, &page); err != nil {
			if len(result.Records) == 0 && token == sinceCursor {
				return result, err
			}
			result.Partial = true
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}

		for _, d := range page.Declarations {
			filedAt, _ := time.Parse(time.RFC3339, d.FiledAt)
			result.Records = append(result.Records, domain.SourceRecord{
				Kind:          domain.KindFinance,
				SourceName:    string(domain.SourceFinance),
				FetchedAt:     now,
				ExternalID:    d.ID,
				Title:         d.Concept,
				URL:           d.URL,
				CandidateName: d.Candidate,
				Party:         d.Party,
				Amount:        d.Amount,
				Currency:      d.Currency,
				PublishedAt:   filedAt,
			})
		}

		f.logger.Debug("finance page ingested", "token", token, "declarations", len(page.Declarations))

		if page.NextToken == "" || len(page.Declarations) == 0 {
			return result, nil
		}
		token = page.NextToken
		result.Cursor = token
	}
}

func (f *Finance) pageURL(token string) (string, error) {
	parsed, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", f.cfg.BaseURL, err)
	}
	q := parsed.Query()
	q.Set("limit", strconv.Itoa(f.cfg.PageSize))
	if token != "" {
		q.Set("page_token", token)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
