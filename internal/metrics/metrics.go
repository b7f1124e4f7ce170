package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SearchRequestsTotal counts search operations by outcome kind
	// ("ok", "cached", or the typed error kind).
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of subtitle search operations.",
		},
		[]string{"status"},
	)

	// SubtitleDownloadsTotal counts download operations by outcome kind.
	SubtitleDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_downloads_total",
			Help: "Total number of subtitle downloads.",
		},
		[]string{"status"},
	)

	// SourceFetchAttemptsTotal counts individual outbound attempts against
	// the source host by outcome ("ok", "forbidden", "rejected",
	// "transport_error").
	SourceFetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_attempts_total",
			Help: "Total number of outbound fetch attempts against the source host.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		SearchRequestsTotal,
		SubtitleDownloadsTotal,
		SourceFetchAttemptsTotal,
	)
}
