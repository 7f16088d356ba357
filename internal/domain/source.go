package domain

import "fmt"

// Source identifies one external data provider. The set is closed: adapters
// are dispatched by a switch over these values, so an unknown source is a
// compile-time hole, not a runtime lookup miss.
type Source string

const (
	SourceRegistry       Source = "registry"
	SourceFinance        Source = "finance-authority"
	SourceJudicial       Source = "judicial"
	SourceNewsRSS        Source = "news-rss"
	SourceNewsAggregator Source = "news-aggregator"
	SourceVideo          Source = "video-platform"
	SourceSocialX        Source = "social-x"
	SourceSocialIG       Source = "social-instagram"
)

// Sources lists every supported source in a stable order.
func Sources() []Source {
	return []Source{
		SourceRegistry,
		SourceFinance,
		SourceJudicial,
		SourceNewsRSS,
		SourceNewsAggregator,
		SourceVideo,
		SourceSocialX,
		SourceSocialIG,
	}
}

// ParseSource validates an externally supplied source name.
func ParseSource(name string) (Source, error) {
	for _, s := range Sources() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown source %q: %w", name, ErrUnknownSource)
}
