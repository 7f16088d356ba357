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

const judicialPage = `
<div class="results">
  <div class="case-result">
    <span class="docket">CR-2026-0142</span>
    <span class="court">District Court 7</span>
    <span class="case-title">State v. Lopez</span>
    <span class="defendant">Maria Lopez</span>
    <p class="case-summary">Campaign finance irregularity hearing.</p>
    <span class="filed-date">14/02/2026</span>
    <a class="case-link" href="https://records.courts.example.org/case/CR-2026-0142">view</a>
  </div>
  <div class="case-result">
    <span class="court">District Court 7</span>
    <span class="case-title">Sealed matter</span>
  </div>
</div>`

func TestJudicialFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(judicialPage))
	}))
	defer server.Close()

	jud := NewJudicial(testScrapeConfig(server.URL, 50), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	result, err := jud.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected the docket-less row to be noted, got %v", result.Errors)
	}

	rec := result.Records[0]
	if rec.Kind != domain.KindJudicial {
		t.Fatalf("unexpected kind: %s", rec.Kind)
	}
	if rec.CaseNumber != "CR-2026-0142" || rec.ExternalID != "CR-2026-0142" {
		t.Fatalf("unexpected docket: %+v", rec)
	}
	if rec.Court != "District Court 7" || rec.CandidateName != "Maria Lopez" {
		t.Fatalf("unexpected payload: %+v", rec)
	}
	want := time.Date(2026, time.February, 14, 0, 0, 0, 0, time.UTC)
	if !rec.PublishedAt.Equal(want) {
		t.Fatalf("unexpected filed date: %v", rec.PublishedAt)
	}
}

func TestJudicialFetchPartialOnLaterPage(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		// Exactly pageSize rows forces a second page request.
		_, _ = w.Write([]byte(`
		<div class="case-result"><span class="docket">A-1</span></div>
		<div class="case-result"><span class="docket">A-2</span></div>`))
	}))
	defer server.Close()

	jud := NewJudicial(testScrapeConfig(server.URL, 2), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	result, err := jud.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result after second page failed")
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected the first page's 2 records, got %d", len(result.Records))
	}
}

func TestJudicialFetchFirstPageFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	jud := NewJudicial(testScrapeConfig(server.URL, 10), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	_, err := jud.Fetch(context.Background(), "")
	if !fetch.Unavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
