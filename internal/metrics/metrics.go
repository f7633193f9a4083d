package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/engine"
)

// Metrics groups all Prometheus instruments used across the
// application. Registered once at startup via New(); passed by pointer
// wherever needed.
type Metrics struct {
	TickersAnalyzed  prometheus.Counter
	TickersFailed    *prometheus.CounterVec
	AnalysisRetries  prometheus.Counter
	AnalysisLatency  prometheus.Histogram
	Broadcasts       *prometheus.CounterVec
	CallsSaved       prometheus.Counter
	ChunkDuration    prometheus.Histogram
	QueueOutstanding prometheus.Gauge
}

// New registers all instruments with the given registerer. Using a
// custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickersAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickers_analyzed_total",
			Help: "Tickers whose analysis completed and validated.",
		}),
		TickersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickers_failed_total",
			Help: "Tickers terminally failed for their cycle, by error category.",
		}, []string{"category"}),
		AnalysisRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_retries_total",
			Help: "Retries issued against the upstream after transient overload errors.",
		}),
		AnalysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_seconds",
			Help:    "Wall time of one successful analysis, including retries.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Per-subscriber primary-record deliveries, by result.",
		}, []string{"result"}),
		CallsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_calls_saved_total",
			Help: "Upstream calls avoided by deduplicating subscribers onto one analysis.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chunk_duration_seconds",
			Help:    "Wall time of one chunk invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		QueueOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_outstanding_tickers",
			Help: "Tickers remaining in the current cycle's queue after the last chunk.",
		}),
	}

	reg.MustRegister(
		m.TickersAnalyzed,
		m.TickersFailed,
		m.AnalysisRetries,
		m.AnalysisLatency,
		m.Broadcasts,
		m.CallsSaved,
		m.ChunkDuration,
		m.QueueOutstanding,
	)

	return m
}

// EngineHooks returns the callback set expected by engine.Hooks,
// centralizing the prometheus observation calls so the engine stays
// import-free.
func (m *Metrics) EngineHooks() engine.Hooks {
	return engine.Hooks{
		OnAnalyzed: func(latency time.Duration) {
			m.TickersAnalyzed.Inc()
			m.AnalysisLatency.Observe(latency.Seconds())
		},
		OnAnalysisFailed: func(category domain.ErrorCategory) {
			m.TickersFailed.WithLabelValues(string(category)).Inc()
		},
		OnAnalysisRetry: func() {
			m.AnalysisRetries.Inc()
		},
		OnBroadcast: func(succeeded bool) {
			if succeeded {
				m.Broadcasts.WithLabelValues("succeeded").Inc()
			} else {
				m.Broadcasts.WithLabelValues("failed").Inc()
			}
		},
		OnCallsSaved: func(n int) {
			m.CallsSaved.Add(float64(n))
		},
	}
}

// ObserveRun records the per-invocation observations.
func (m *Metrics) ObserveRun(summary domain.RunSummary) {
	m.ChunkDuration.Observe(float64(summary.DurationMs) / 1000)
	m.QueueOutstanding.Set(float64(summary.TotalTickers - summary.Processed))
}
