// Package enrich scores stored mentions with an external reasoning model.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// bodyLimit truncates record bodies before prompting; long transcripts add
// cost without changing the verdict.
const bodyLimit = 4000

const systemPrompt = `You assess political media mentions. Reply with a single JSON object, no prose:
{"sentiment":"positive"|"neutral"|"negative","relevance":<0..1>,"verified":<bool>,"confidence":<0..1>}
relevance is how central the candidate is to the text; verified is whether the text asserts checkable facts rather than opinion.`

// ModelClient talks to an OpenAI-compatible chat completions endpoint.
type ModelClient struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

var _ ports.Analyzer = (*ModelClient)(nil)

// NewModelClient creates a reusable HTTP client. Per-call deadlines come
// from the caller's context; the transport timeout is a backstop.
func NewModelClient(endpoint, model, apiKey string) *ModelClient {
	return &ModelClient{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the transport; used by tests.
func (c *ModelClient) WithHTTPClient(h *http.Client) *ModelClient {
	c.http = h
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	Sentiment  string  `json:"sentiment"`
	Relevance  float64 `json:"relevance"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// Analyze sends one record for scoring and parses the strict-JSON verdict.
func (c *ModelClient) Analyze(ctx context.Context, rec domain.CanonicalRecord) (domain.Analysis, error) {
	body := rec.Body
	if len(body) > bodyLimit {
		body = body[:bodyLimit]
	}

	user := fmt.Sprintf("Candidate: %s\nSource: %s\nTitle: %s\nText: %s",
		rec.CandidateName, rec.DataSource, rec.Title, body)

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	}

	var resp chatResponse
	if err := c.post(ctx, payload, &resp); err != nil {
		return domain.Analysis{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("model returned no choices")
	}

	var v verdict
	content := stripFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse verdict: %w", err)
	}

	switch v.Sentiment {
	case "positive", "neutral", "negative":
	default:
		return domain.Analysis{}, fmt.Errorf("unexpected sentiment %q", v.Sentiment)
	}

	return domain.Analysis{
		Sentiment:  v.Sentiment,
		Relevance:  clamp01(v.Relevance),
		Verified:   v.Verified,
		Confidence: clamp01(v.Confidence),
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

func (c *ModelClient) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// stripFence tolerates models that wrap JSON in a markdown code block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
