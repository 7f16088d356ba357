package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"candidatewatch/internal/domain"
)

const userAgent = "candidatewatch/1.0"

// maxBodyBytes caps how much of a response we are willing to read; external
// sources are not trusted to be well-behaved.
const maxBodyBytes = 8 << 20

// Client wraps an http.Client with per-source pacing and error
// classification. One Client is built per adapter so each source gets its own
// rate budget.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a paced client. rps <= 0 disables pacing.
func NewClient(timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// WithHTTPClient overrides the underlying transport; used by tests with
// httptest servers.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// Get performs a paced GET and returns the body. Status-code and transport
// failures come back wrapped in the domain error taxonomy.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(url, resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, domain.ErrSourceUnavailable)
	}
	return body, nil
}

// Document fetches and parses an HTML page.
func (c *Client) Document(ctx context.Context, url string, headers map[string]string) (*goquery.Document, error) {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, domain.ErrSourceFormatChanged)
	}
	return doc, nil
}

// JSON fetches and decodes a JSON payload into v.
func (c *Client) JSON(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", url, err, domain.ErrSourceFormatChanged)
	}
	return nil
}

func classifyTransport(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("get %s: timeout: %w", url, domain.ErrSourceUnavailable)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("get %s: timeout: %w", url, domain.ErrSourceUnavailable)
	}
	return fmt.Errorf("get %s: %v: %w", url, err, domain.ErrSourceUnavailable)
}

func classifyStatus(url string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusTooManyRequests || code == http.StatusUnavailableForLegalReasons:
		return fmt.Errorf("get %s: status %d: %w", url, code, domain.ErrSourceBlocked)
	case code >= 500:
		return fmt.Errorf("get %s: status %d: %w", url, code, domain.ErrSourceUnavailable)
	default:
		return fmt.Errorf("get %s: status %d: %w", url, code, domain.ErrSourceFormatChanged)
	}
}

// Blocked reports whether err means the source actively rejected us.
func Blocked(err error) bool {
	return errors.Is(err, domain.ErrSourceBlocked)
}

// Unavailable reports whether err means the source could not be reached.
func Unavailable(err error) bool {
	return errors.Is(err, domain.ErrSourceUnavailable)
}
