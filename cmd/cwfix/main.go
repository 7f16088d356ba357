// Command cwfix runs the normalization repair pass once and exits. It is
// meant for operator use after an aggregator format change, without touching
// the running service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"candidatewatch/internal/config"
	"candidatewatch/internal/logging"
	"candidatewatch/internal/maintenance"
	"candidatewatch/internal/store"
)

func main() {
	hosts := flag.String("hosts", "news.google.com", "comma-separated aggregator hosts to repair")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall pass deadline")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fixer := maintenance.NewFixer(store.NewPostgresCanonical(db), logger, strings.Split(*hosts, ","))
	fixed, err := fixer.FixNormalization(ctx)
	if err != nil {
		logger.Error("fix pass failed", "rows_fixed", fixed, "error", err)
		os.Exit(1)
	}
	logger.Info("fix pass complete", "rows_fixed", fixed)
}
