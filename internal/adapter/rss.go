package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/ports"
)

var rssDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	Source      string `xml:"source"`
}

// RSS ingests one or more news feeds into news mentions. Each configured
// feed fails independently: a broken feed is reported as a partial-run error
// while the remaining feeds still contribute records.
type RSS struct {
	source domain.Source
	cfg    config.FeedConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*RSS)(nil)

// NewRSS wires the feed client from configuration.
func NewRSS(source domain.Source, cfg config.FeedConfig, logger *slog.Logger) *RSS {
	return &RSS{
		source: source,
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, 0),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (r *RSS) WithClient(c *fetch.Client) *RSS {
	r.client = c
	return r
}

// Source identifies this adapter.
func (r *RSS) Source() domain.Source { return r.source }

// Fetch pulls every configured feed and maps items to news mentions.
func (r *RSS) Fetch(ctx context.Context, _ string) (domain.FetchResult, error) {
	if len(r.cfg.URLs) == 0 {
		return domain.FetchResult{}, fmt.Errorf("no feeds configured: %w", domain.ErrSourceUnavailable)
	}

	var result domain.FetchResult
	now := time.Now().UTC()
	failed := 0

	for _, feedURL := range r.cfg.URLs {
		records, err := r.fetchFeed(ctx, feedURL, now)
		if err != nil {
			failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Records = append(result.Records, records...)
	}

	if failed == len(r.cfg.URLs) {
		return result, fmt.Errorf("all %d feeds failed: %w", failed, domain.ErrSourceUnavailable)
	}
	result.Partial = failed > 0
	return result, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string, fetchedAt time.Time) ([]domain.SourceRecord, error) {
	body, err := r.client.Get(ctx, feedURL, nil)
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed %s: %v: %w", feedURL, err, domain.ErrSourceFormatChanged)
	}

	sourceName := feedSourceName(feedURL, feed.Channel.Title)
	records := make([]domain.SourceRecord, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		rec := domain.SourceRecord{
			Kind:        domain.KindNewsMention,
			SourceName:  sourceName,
			FetchedAt:   fetchedAt,
			ExternalID:  strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Body:        strings.TrimSpace(item.Description),
			URL:         strings.TrimSpace(item.Link),
			Author:      strings.TrimSpace(item.Author),
			PublishedAt: parseRSSDate(item.PubDate),
		}
		if s := strings.TrimSpace(item.Source); s != "" {
			rec.SourceName = s
		}
		records = append(records, rec)
	}

	r.logger.Debug("feed ingested", "feed", feedURL, "items", len(records))
	return records, nil
}

func parseRSSDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range rssDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func feedSourceName(feedURL, channelTitle string) string {
	if parsed, err := url.Parse(feedURL); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	if channelTitle != "" {
		return channelTitle
	}
	return feedURL
}
