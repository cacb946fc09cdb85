package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for domain analysis. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Submissions by gate outcome: completed, in_progress, invalid, failed
	Submissions *prometheus.CounterVec

	// Analysis runs by trigger source and stored status
	AnalysisJobs *prometheus.CounterVec

	AnalysisLatency prometheus.Histogram

	// Provider fetch latency by provider and result (success or error category)
	FetchLatency *prometheus.HistogramVec

	SchedulerPasses  prometheus.Counter
	SchedulerRescans prometheus.Counter
}

// New registers every analysis metric on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainintel_submissions_total",
			Help: "Domain submissions by gate outcome",
		}, []string{"outcome"}),

		AnalysisJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "domainintel_analysis_jobs_total",
			Help: "Analysis runs by trigger source and resulting status",
		}, []string{"source", "result"}),

		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "domainintel_analysis_duration_seconds",
			Help:    "Duration of one analysis run including both provider fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "domainintel_provider_fetch_duration_seconds",
			Help:    "Duration of provider fetches by provider and result",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"provider", "result"}),

		SchedulerPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "domainintel_scheduler_passes_total",
			Help: "Completed staleness passes",
		}),

		SchedulerRescans: f.NewCounter(prometheus.CounterOpts{
			Name: "domainintel_scheduler_rescans_total",
			Help: "Domains re-analyzed by the staleness scheduler",
		}),
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

// ObserveAnalysis records one finished analysis run.
func (m *Metrics) ObserveAnalysis(source, result string, d time.Duration) {
	if m != nil {
		m.AnalysisJobs.WithLabelValues(source, result).Inc()
		m.AnalysisLatency.Observe(d.Seconds())
	}
}

// ObserveFetch satisfies providers.Observer.
func (m *Metrics) ObserveFetch(provider, result string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(provider, result).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementPass() {
	if m != nil {
		m.SchedulerPasses.Inc()
	}
}

func (m *Metrics) IncrementRescan() {
	if m != nil {
		m.SchedulerRescans.Inc()
	}
}
