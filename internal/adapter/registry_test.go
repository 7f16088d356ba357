package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/fetch"
	"candidatewatch/internal/logging"
)

func testScrapeConfig(baseURL string, pageSize int) config.ScrapeConfig {
	return config.ScrapeConfig{
		BaseURL:  baseURL,
		Timeout:  5 * time.Second,
		PageSize: pageSize,
	}
}

func TestPagedURL(t *testing.T) {
	t.Parallel()

	u, err := pagedURL("https://registry.example.org/candidates", 3, 50)
	if err != nil {
		t.Fatalf("pagedURL error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if parsed.Query().Get("page") != "3" {
		t.Fatalf("expected page=3, got %s", parsed.Query().Get("page"))
	}
	if parsed.Query().Get("per_page") != "50" {
		t.Fatalf("expected per_page=50, got %s", parsed.Query().Get("per_page"))
	}
}

func TestRegistryFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page != "1" {
			_, _ = w.Write([]byte(`<table class="candidates"><tbody></tbody></table>`))
			return
		}
		_, _ = w.Write([]byte(`
		<table class="candidates"><tbody>
		  <tr>
		    <td><a href="/candidate/c-101">Maria Lopez</a></td>
		    <td class="party">Reform Party</td>
		    <td class="district">District 4</td>
		  </tr>
		  <tr>
		    <td><a href="/candidate/c-102">Jon Park</a></td>
		    <td class="party">Unity</td>
		    <td class="district">District 9</td>
		  </tr>
		  <tr>
		    <td><a href="/candidate/c-103"></a></td>
		  </tr>
		</tbody></table>`))
	}))
	defer server.Close()

	reg := NewRegistry(testScrapeConfig(server.URL, 100), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	result, err := reg.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if result.Partial {
		t.Fatal("unexpected partial result")
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}

	first := result.Records[0]
	if first.Kind != domain.KindCandidateProfile {
		t.Fatalf("unexpected kind: %s", first.Kind)
	}
	if first.ExternalID != "c-101" {
		t.Fatalf("unexpected external id: %s", first.ExternalID)
	}
	if first.CandidateName != "Maria Lopez" || first.Party != "Reform Party" || first.District != "District 4" {
		t.Fatalf("unexpected payload: %+v", first)
	}
}

func TestRegistryFetchPartialOnLaterPage(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		// Exactly pageSize rows forces a second page request.
		_, _ = w.Write([]byte(`<table class="candidates"><tbody>` +
			rowHTML("c-1", "Ana One") + rowHTML("c-2", "Ben Two") +
			`</tbody></table>`))
	}))
	defer server.Close()

	reg := NewRegistry(testScrapeConfig(server.URL, 2), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	result, err := reg.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result after second page failed")
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected the first page's 2 records, got %d", len(result.Records))
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected the page failure to be reported")
	}
}

func TestRegistryFetchFirstPageFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reg := NewRegistry(testScrapeConfig(server.URL, 10), logging.New("error")).
		WithClient(fetch.NewClient(5*time.Second, 0).WithHTTPClient(server.Client()))

	_, err := reg.Fetch(context.Background(), "")
	if !fetch.Unavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func rowHTML(id, name string) string {
	return fmt.Sprintf(`<tr><td><a href="/candidate/%s">%s</a></td><td class="party">P</td><td class="district">D</td></tr>`, id, name)
}
