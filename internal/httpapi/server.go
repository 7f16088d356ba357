// Package httpapi exposes the scheduler-facing trigger surface.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"candidatewatch/internal/domain"
)

// Syncer triggers and inspects sync runs.
type Syncer interface {
	Run(ctx context.Context, source domain.Source) (domain.SyncSummary, error)
	Status(ctx context.Context) (map[domain.Source]domain.SyncRunLog, error)
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.SyncRunLog, int, error)
}

// Enricher drives the enrichment queue.
type Enricher interface {
	Drain(ctx context.Context) (domain.DrainSummary, error)
	Enqueue(ctx context.Context, sourceType domain.RecordKind, sourceID int64, priority int) (string, bool, error)
}

// Maintainer runs repair passes.
type Maintainer interface {
	FixNormalization(ctx context.Context) (int, error)
}

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server wires the trigger endpoints. All mutating routes sit behind the
// scheduler secret; status, health, and metrics are open for probes.
type Server struct {
	syncer     Syncer
	enricher   Enricher
	maintainer Maintainer
	pinger     Pinger
	secret     string
}

// New builds the HTTP surface. An empty secret disables the mutating
// triggers rather than leaving them open.
func New(syncer Syncer, enricher Enricher, maintainer Maintainer, pinger Pinger, secret string) *Server {
	return &Server{
		syncer:     syncer,
		enricher:   enricher,
		maintainer: maintainer,
		pinger:     pinger,
		secret:     secret,
	}
}

// Router mounts all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/sync/status", s.handleStatus)
	r.Get("/sync/runs", s.handleListRuns)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/sync/{source}", s.handleSync)
		r.Post("/enrichment/enqueue", s.handleEnqueue)
		r.Post("/enrichment/drain", s.handleDrain)
		r.Post("/maintenance/fix-normalization", s.handleFixNormalization)
	})

	return r
}

// requireSecret compares the bearer credential in constant time.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			writeError(w, http.StatusServiceUnavailable, "triggers disabled: no scheduler secret configured")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	source, err := domain.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	summary, err := s.syncer.Run(r.Context(), source)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil && summary.Status == domain.RunFailed:
		writeJSON(w, http.StatusBadGateway, summary)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.syncer.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type sourceStatus struct {
		Source      string `json:"source"`
		Status      string `json:"status,omitempty"`
		StartedAt   string `json:"startedAt,omitempty"`
		CompletedAt string `json:"completedAt,omitempty"`
		Processed   int    `json:"itemsProcessed"`
		Error       string `json:"error,omitempty"`
	}

	// Every known source appears in the answer, synced or not.
	out := make([]sourceStatus, 0, len(domain.Sources()))
	for _, src := range domain.Sources() {
		entry := sourceStatus{Source: string(src)}
		if row, ok := latest[src]; ok {
			entry.Status = string(row.Status)
			entry.StartedAt = row.StartedAt.Format(timeLayout)
			if !row.CompletedAt.IsZero() {
				entry.CompletedAt = row.CompletedAt.Format(timeLayout)
			}
			entry.Processed = row.RecordsProcessed
			entry.Error = row.ErrorMessage
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := domain.RunFilter{Limit: 50}

	if v := r.URL.Query().Get("source"); v != "" {
		src, err := domain.ParseSource(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Source = &src
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseRunStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	runs, total, err := s.syncer.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type runRow struct {
		ID          int64  `json:"id"`
		Source      string `json:"source"`
		Status      string `json:"status"`
		StartedAt   string `json:"startedAt"`
		CompletedAt string `json:"completedAt,omitempty"`
		DurationMs  int64  `json:"durationMs"`
		Processed   int    `json:"itemsProcessed"`
		Created     int    `json:"itemsCreated"`
		Updated     int    `json:"itemsUpdated"`
		Skipped     int    `json:"itemsSkipped"`
		Error       string `json:"error,omitempty"`
	}

	out := make([]runRow, 0, len(runs))
	for _, run := range runs {
		row := runRow{
			ID:         run.ID,
			Source:     string(run.Source),
			Status:     string(run.Status),
			StartedAt:  run.StartedAt.Format(timeLayout),
			DurationMs: run.DurationMs,
			Processed:  run.RecordsProcessed,
			Created:    run.RecordsCreated,
			Updated:    run.RecordsUpdated,
			Skipped:    run.RecordsSkipped,
			Error:      run.ErrorMessage,
		}
		if !run.CompletedAt.IsZero() {
			row.CompletedAt = run.CompletedAt.Format(timeLayout)
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out, "total": total})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceType string `json:"sourceType"`
		SourceID   int64  `json:"sourceId"`
		Priority   *int   `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := domain.RecordKind(req.SourceType)
	if kind != domain.KindNewsMention && kind != domain.KindSocialMention {
		writeError(w, http.StatusBadRequest, "sourceType must be news_mention or social_mention")
		return
	}

	priority := domain.DefaultTaskPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	taskID, created, err := s.enricher.Enqueue(r.Context(), kind, req.SourceID, priority)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"taskId": taskID, "created": created})
	}
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	summary, err := s.enricher.Drain(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleFixNormalization(w http.ResponseWriter, r *http.Request) {
	fixed, err := s.maintainer.FixNormalization(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rowsFixed": fixed})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
