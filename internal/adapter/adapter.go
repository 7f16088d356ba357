// Package adapter translates external sources into normalized records. One
// file per source; dispatch is a switch over the closed domain.Source set so
// an unhandled source fails at compile time, not at runtime.
package adapter

import (
	"fmt"
	"log/slog"

	"candidatewatch/internal/config"
	"candidatewatch/internal/domain"
	"candidatewatch/internal/ports"
)

// ForSource builds the adapter for one source from configuration.
func ForSource(src domain.Source, cfg config.SourcesConfig, logger *slog.Logger) (ports.SourceAdapter, error) {
	child := func(name string) *slog.Logger {
		return logger.With("component", "adapter."+name)
	}

	switch src {
	case domain.SourceRegistry:
		return NewRegistry(cfg.Registry, child("registry")), nil
	case domain.SourceFinance:
		return NewFinance(cfg.Finance, child("finance")), nil
	case domain.SourceJudicial:
		return NewJudicial(cfg.Judicial, child("judicial")), nil
	case domain.SourceNewsRSS:
		return NewRSS(domain.SourceNewsRSS, cfg.NewsRSS, child("rss")), nil
	case domain.SourceNewsAggregator:
		return NewAggregator(cfg.Aggregator, child("aggregator")), nil
	case domain.SourceVideo:
		return NewVideo(cfg.Video, child("video")), nil
	case domain.SourceSocialX:
		return NewSocial(domain.SourceSocialX, cfg.SocialX, child("social-x")), nil
	case domain.SourceSocialIG:
		return NewSocial(domain.SourceSocialIG, cfg.SocialIG, child("social-ig")), nil
	}
	return nil, fmt.Errorf("no adapter for %q: %w", src, domain.ErrUnknownSource)
}
