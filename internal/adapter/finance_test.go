package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/logging"
)

func newTestFinance(baseURL, apiKey string, client *http.Client) *Finance {
	cfg := config.APIConfig{BaseURL: baseURL, APIKey: apiKey, Timeout: 5 * time.Second, PageSize: 2}
	return NewFinance(cfg, logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(client))
}

func TestFinanceFetchPaginates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_token") {
		case "":
			_, _ = w.Write([]byte(`{
				"next_token": "t2",
				"declarations": [
					{"id": "d1", "candidate_name": "Maria Lopez", "party": "Reform", "concept": "Media buy",
					 "amount": 12000.5, "currency": "EUR", "filed_at": "2026-02-20T00:00:00Z", "url": "https://fin.example.org/d1"},
					{"id": "d2", "candidate_name": "Jon Park", "concept": "Venue rental",
					 "amount": 800, "currency": "EUR", "filed_at": "2026-02-21T00:00:00Z", "url": "https://fin.example.org/d2"}
				]
			}`))
		case "t2":
			_, _ = w.Write([]byte(`{
				"next_token": "",
				"declarations": [
					{"id": "d3", "candidate_name": "Maria Lopez", "concept": "Printing",
					 "amount": 300, "currency": "EUR", "filed_at": "2026-02-22T00:00:00Z", "url": "https://fin.example.org/d3"}
				]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fin := newTestFinance(server.URL, "key-1", server.Client())

	result, err := fin.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(result.Records))
	}
	if result.Cursor != "t2" {
		t.Fatalf("cursor should hold the last good page token, got %q", result.Cursor)
	}

	first := result.Records[0]
	if first.Kind != domain.KindFinance {
		t.Fatalf("unexpected kind: %s", first.Kind)
	}
	if first.Amount != 12000.5 || first.Currency != "EUR" {
		t.Fatalf("unexpected amount: %v %s", first.Amount, first.Currency)
	}
}

func TestFinanceFetchPartialMidPagination(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_token") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{
			"next_token": "t2",
			"declarations": [
				{"id": "d1", "candidate_name": "Maria Lopez", "concept": "Media buy",
				 "amount": 100, "currency": "EUR", "filed_at": "2026-02-20T00:00:00Z", "url": ""}
			]
		}`))
	}))
	defer server.Close()

	fin := newTestFinance(server.URL, "key-1", server.Client())

	result, err := fin.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result after second page failed")
	}
	if len(result.Records) != 1 {
		t.Fatalf("first page records should survive, got %d", len(result.Records))
	}
}

func TestFinanceFetchMissingKey(t *testing.T) {
	t.Parallel()

	fin := newTestFinance("https://api.finance.example.org", "", nil)

	_, err := fin.Fetch(context.Background(), "")
	if !fetch.Unavailable(err) {
		t.Fatalf("expected unavailable error for missing key, got %v", err)
	}
}
