// Package metrics holds the prometheus collectors shared by the engine
// clients, the segment pipeline and the ranker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rephraser"

type Metrics struct {
	EngineStarts   *prometheus.CounterVec
	EngineFailures *prometheus.CounterVec
	EngineKills    *prometheus.CounterVec
	EngineQueries  *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	ParseFailures  *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	LMDropped      prometheus.Counter
	LatticeOutputs prometheus.Histogram
	RankedOutputs  prometheus.Histogram
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EngineStarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_starts_total",
			Help:      "External engine processes started.",
		}, []string{"engine"}),
		EngineFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_failures_total",
			Help:      "Engine startup failures and crashes observed mid-exchange.",
		}, []string{"engine", "kind"}),
		EngineKills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_idle_kills_total",
			Help:      "Engine processes terminated by the idle watchdog.",
		}, []string{"engine"}),
		EngineQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_queries_total",
			Help:      "Request/response exchanges with external engines.",
		}, []string{"engine"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_query_duration_seconds",
			Help:      "Duration of one request/response exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"engine"}),
		ParseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Engine response lines skipped because they could not be parsed.",
		}, []string{"stage"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_cache_lookups_total",
			Help:      "Segment cache lookups by result.",
		}, []string{"result"}),
		LMDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lm_dropped_candidates_total",
			Help:      "Candidates dropped because the LM response had no Total field.",
		}),
		LatticeOutputs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lattice_outputs",
			Help:      "Full-coverage paraphrases produced per input.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RankedOutputs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranked_outputs",
			Help:      "Paraphrases surviving LM rescoring per input.",
			Buckets:   prometheus.LinearBuckets(0, 5, 7),
		}),
	}
}

// NewNop returns collectors bound to a private registry that nothing scrapes.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
