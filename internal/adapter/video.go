package adapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/ports"
)

// Video scrapes the video platform's search results. The platform is openly
// hostile to scraping: requests are paced far below one per second and an
// active rejection (429/403 or an interstitial challenge page) is surfaced
// through the Blocked signal instead of being mistaken for an empty result.
type Video struct {
	cfg    config.ScrapeConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*Video)(nil)

// NewVideo wires a heavily paced client from configuration.
func NewVideo(cfg config.ScrapeConfig, logger *slog.Logger) *Video {
	return &Video{
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, cfg.RPS),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (v *Video) WithClient(c *fetch.Client) *Video {
	v.client = c
	return v
}

// Source identifies this adapter.
func (v *Video) Source() domain.Source { return domain.SourceVideo }

// Fetch scrapes one results page per run; the platform's pagination is
// session-bound and not worth fighting.
func (v *Video) Fetch(ctx context.Context, _ string) (domain.FetchResult, error) {
	var result domain.FetchResult

	doc, err := v.client.Document(ctx, v.cfg.BaseURL, nil)
	if err != nil {
		if fetch.Blocked(err) {
			v.logger.Warn("video platform rejected the crawl", "error", err)
			result.Blocked = true
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
		return result, err
	}

	if isChallengePage(doc) {
		v.logger.Warn("video platform served a challenge page")
		result.Blocked = true
		result.Errors = append(result.Errors, "challenge page served instead of results")
		return result, nil
	}

	now := time.Now().UTC()
	doc.Find("div.video-result").Each(func(_ int, sel *goquery.Selection) {
		videoID, _ := sel.Attr("data-video-id")
		rec := domain.SourceRecord{
			Kind:        domain.KindSocialMention,
			SourceName:  string(domain.SourceVideo),
			FetchedAt:   now,
			ExternalID:  videoID,
			Title:       strings.TrimSpace(sel.Find(".video-title").First().Text()),
			Author:      strings.TrimSpace(sel.Find(".channel-name").First().Text()),
			Body:        strings.TrimSpace(sel.Find(".video-description").First().Text()),
			PublishedAt: parseRSSDate(sel.Find("time").First().AttrOr("datetime", "")),
		}
		if href, ok := sel.Find("a.video-link").First().Attr("href"); ok {
			rec.URL = href
		}
		result.Records = append(result.Records, rec)
	})

	v.logger.Debug("video results scanned", "records", len(result.Records))
	return result, nil
}

// isChallengePage detects anti-bot interstitials served with a 200 status.
func isChallengePage(doc *goquery.Document) bool {
	if doc.Find("form#challenge-form, div.captcha").Length() > 0 {
		return true
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "verify") || strings.Contains(title, "unusual traffic")
}
