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

var judicialDateLayouts = []string{"02/01/2006", "2006-01-02", "2 Jan 2006"}

// Judicial scrapes the court-record search portal. The portal throttles
// aggressively, so the client is paced well under one request per second and
// a single page failure ends the run as partial rather than retrying.
type Judicial struct {
	cfg    config.ScrapeConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*Judicial)(nil)

// NewJudicial wires a paced client from configuration.
func NewJudicial(cfg config.ScrapeConfig, logger *slog.Logger) *Judicial {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Judicial{
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, cfg.RPS),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (j *Judicial) WithClient(c *fetch.Client) *Judicial {
	j.client = c
	return j
}

// Source identifies this adapter.
func (j *Judicial) Source() domain.Source { return domain.SourceJudicial }

// Fetch walks the search result pages. Case rows without a docket number
// have no stable key and are dropped with a skip note.
func (j *Judicial) Fetch(ctx context.Context, _ string) (domain.FetchResult, error) {
	var result domain.FetchResult
	now := time.Now().UTC()

	for page := 1; ; page++ {
		pageURL, err := j.pageURL(page)
		if err != nil {
			return result, fmt.Errorf("judicial url: %w", err)
		}

		doc, err := j.client.Document(ctx, pageURL, nil)
		if err != nil {
			if page == 1 {
				return result, err
			}
			result.Partial = true
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}

		rows := 0
		doc.Find("div.case-result").Each(func(_ int, sel *goquery.Selection) {
			rows++
			rec := j.parseCase(sel, now)
			if rec.ExternalID == "" {
				result.Errors = append(result.Errors, "case row without docket number skipped")
				return
			}
			result.Records = append(result.Records, rec)
		})

		j.logger.Debug("judicial page scanned", "page", page, "rows", rows)

		if rows < j.cfg.PageSize {
			return result, nil
		}
	}
}

func (j *Judicial) parseCase(sel *goquery.Selection, fetchedAt time.Time) domain.SourceRecord {
	rec := domain.SourceRecord{
		Kind:       domain.KindJudicial,
		SourceName: string(domain.SourceJudicial),
		FetchedAt:  fetchedAt,
	}

	rec.CaseNumber = strings.TrimSpace(sel.Find(".docket").First().Text())
	rec.ExternalID = rec.CaseNumber
	rec.Court = strings.TrimSpace(sel.Find(".court").First().Text())
	rec.Title = strings.TrimSpace(sel.Find(".case-title").First().Text())
	rec.CandidateName = strings.TrimSpace(sel.Find(".defendant").First().Text())
	rec.Body = strings.TrimSpace(sel.Find(".case-summary").First().Text())

	if href, ok := sel.Find("a.case-link").First().Attr("href"); ok {
		rec.URL = href
	}

	dateText := strings.TrimSpace(sel.Find(".filed-date").First().Text())
	for _, layout := range judicialDateLayouts {
		if parsed, err := time.Parse(layout, dateText); err == nil {
			rec.PublishedAt = parsed.UTC()
			break
		}
	}

	return rec
}

func (j *Judicial) pageURL(page int) (string, error) {
	parsed, err := url.Parse(j.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", j.cfg.BaseURL, err)
	}
	q := parsed.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(j.cfg.PageSize))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
