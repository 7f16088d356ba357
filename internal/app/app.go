// Package app wires configuration to the pipeline components and the HTTP
// trigger surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"candidatewatch/internal/adapter"
	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/enrich"
	"candidatewatch/internal/httpapi"
	"candidatewatch/internal/logging"
	"candidatewatch/internal/maintenance"
	"candidatewatch/internal/metrics"
	"candidatewatch/internal/ports"
	"candidatewatch/internal/store"
	"candidatewatch/internal/syncrun"
	"candidatewatch/internal/upsert"
)

// Application holds the wired pipeline and its HTTP server.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	server *http.Server
}

// New builds a runnable application instance against Postgres.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	adapters := make(map[domain.Source]ports.SourceAdapter, len(domain.Sources()))
	for _, src := range domain.Sources() {
		a, err := adapter.ForSource(src, cfg.Sources, baseLogger.With("component", "adapter."+string(src)))
		if err != nil {
			return nil, fmt.Errorf("build adapter %s: %w", src, err)
		}
		adapters[src] = a
	}

	m := metrics.New()
	canonical := store.NewPostgresCanonical(db)
	runs := store.NewPostgresRunLog(db)
	tasks := store.NewPostgresTask(db)

	engine := upsert.NewEngine(canonical, tasks, baseLogger.With("component", "upsert"))
	coordinator := syncrun.New(adapters, runs, engine, m, baseLogger.With("component", "syncrun"), cfg.Pipeline.RunBudget)

	analyzer := enrich.NewModelClient(cfg.Model.Endpoint, cfg.Model.Model, cfg.Model.APIKey)
	worker := enrich.NewWorker(
		tasks, canonical, analyzer, m,
		baseLogger.With("component", "enrich"),
		cfg.Pipeline.RetryCeiling, cfg.Pipeline.DrainBatchSize, cfg.Pipeline.ModelTimeout,
	)

	fixer := maintenance.NewFixer(canonical, baseLogger.With("component", "maintenance"), aggregatorHosts(cfg))

	api := httpapi.New(coordinator, worker, fixer, db, cfg.Server.SchedulerSecret)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{cfg: cfg, logger: baseLogger, db: db, server: server}, nil
}

// aggregatorHosts derives the hosts whose titles carry the publisher echo
// from the configured aggregator feeds.
func aggregatorHosts(cfg config.Config) []string {
	var hosts []string
	for _, raw := range cfg.Sources.Aggregator.URLs {
		if host := hostOf(raw); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.cfg.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return a.db.Close()
}
