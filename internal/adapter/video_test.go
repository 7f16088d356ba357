package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/logging"
)

func newTestVideo(baseURL string, client *http.Client) *Video {
	return NewVideo(testScrapeConfig(baseURL, 0), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(client))
}

func TestVideoFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<html><body>
		  <div class="video-result" data-video-id="vid-1">
		    <a class="video-link" href="https://video.example.org/w/vid-1">
		      <span class="video-title">Town hall with Maria Lopez</span>
		    </a>
		    <span class="channel-name">Civic Channel</span>
		    <p class="video-description">Full recording of the event.</p>
		    <time datetime="2026-03-01T18:00:00Z">yesterday</time>
		  </div>
		</body></html>`))
	}))
	defer server.Close()

	video := newTestVideo(server.URL, server.Client())

	result, err := video.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if result.Blocked {
		t.Fatal("unexpected blocked result")
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}

	rec := result.Records[0]
	if rec.Kind != domain.KindSocialMention {
		t.Fatalf("unexpected kind: %s", rec.Kind)
	}
	if rec.ExternalID != "vid-1" {
		t.Fatalf("unexpected external id: %s", rec.ExternalID)
	}
	if rec.Title != "Town hall with Maria Lopez" || rec.Author != "Civic Channel" {
		t.Fatalf("unexpected payload: %+v", rec)
	}
	if rec.URL != "https://video.example.org/w/vid-1" {
		t.Fatalf("unexpected url: %s", rec.URL)
	}
}

func TestVideoFetchBlockedByStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	video := newTestVideo(server.URL, server.Client())

	result, err := video.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("blocked must not be a hard error: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected Blocked on 429")
	}
}

func TestVideoFetchChallengePage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<html><head><title>Please verify you are human</title></head>
		<body><form id="challenge-form"></form></body></html>`))
	}))
	defer server.Close()

	video := newTestVideo(server.URL, server.Client())

	result, err := video.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("challenge page must not be a hard error: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected Blocked for a challenge page served with 200")
	}
	if len(result.Records) != 0 {
		t.Fatalf("challenge page must not yield records, got %d", len(result.Records))
	}
}
