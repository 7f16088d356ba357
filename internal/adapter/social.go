package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/ports"
)

// Social pulls candidate mentions from one social platform's search API.
// Both configured platforms speak the same envelope, so a single adapter is
// parameterized by source identity. The platforms rate-limit and revoke
// tokens without notice; a 401/403/429 is surfaced as Blocked.
type Social struct {
	source domain.Source
	cfg    config.APIConfig
	client *fetch.Client
	logger *slog.Logger
}

var _ ports.SourceAdapter = (*Social)(nil)

// NewSocial wires the platform client from configuration.
func NewSocial(source domain.Source, cfg config.APIConfig, logger *slog.Logger) *Social {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Social{
		source: source,
		cfg:    cfg,
		client: fetch.NewClient(cfg.Timeout, 0),
		logger: logger,
	}
}

// WithClient overrides the fetch client; used by tests.
func (s *Social) WithClient(c *fetch.Client) *Social {
	s.client = c
	return s
}

// Source identifies this adapter.
func (s *Social) Source() domain.Source { return s.source }

type socialPage struct {
	NewestID string `json:"newest_id"`
	Posts    []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		Author    string `json:"author_handle"`
		URL       string `json:"url"`
		CreatedAt string `json:"created_at"`
		Candidate string `json:"matched_candidate"`
		Sentiment string `json:"sentiment_hint"`
	} `json:"posts"`
}

// Fetch pulls mentions newer than sinceCursor (the platform's since_id).
func (s *Social) Fetch(ctx context.Context, sinceCursor string) (domain.FetchResult, error) {
	if s.cfg.APIKey == "" {
		return domain.FetchResult{}, fmt.Errorf("%s token missing: %w", s.source, domain.ErrSourceUnavailable)
	}

	result := domain.FetchResult{Cursor: sinceCursor}
	pageURL, err := s.searchURL(sinceCursor)
	if err != nil {
		return result, fmt.Errorf("social url: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}
	var page socialPage
	if err := s.client.JSON(ctx, pageURL, headers, &page); err != nil {
		if fetch.Blocked(err) {
			s.logger.Warn("social platform rejected the request", "source", s.source, "error", err)
			result.Blocked = true
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
		return result, err
	}

	now := time.Now().UTC()
	for _, post := range page.Posts {
		createdAt, _ := time.Parse(time.RFC3339, post.CreatedAt)
		result.Records = append(result.Records, domain.SourceRecord{
			Kind:          domain.KindSocialMention,
			SourceName:    string(s.source),
			FetchedAt:     now,
			ExternalID:    post.ID,
			Title:         truncate(post.Text, 140),
			Body:          post.Text,
			URL:           post.URL,
			Author:        post.Author,
			CandidateName: post.Candidate,
			Sentiment:     post.Sentiment,
			PublishedAt:   createdAt.UTC(),
		})
	}

	if page.NewestID != "" {
		result.Cursor = page.NewestID
	}
	s.logger.Debug("social mentions ingested", "source", s.source, "posts", len(page.Posts))
	return result, nil
}

func (s *Social) searchURL(sinceID string) (string, error) {
	parsed, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", s.cfg.BaseURL, err)
	}
	q := parsed.Query()
	q.Set("max_results", fmt.Sprintf("%d", s.cfg.PageSize))
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
