package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics for the operations listener
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warden_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Report workflow metrics
var (
	ReportsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_reports_created_total",
		Help: "Total number of reports created",
	}, []string{"item_type", "source"})

	ReportTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_report_transitions_total",
		Help: "Total number of successful report status transitions",
	}, []string{"status"})

	ReportConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_report_conflicts_total",
		Help: "Total number of transitions rejected because the report was in another status",
	}, []string{"operation"})

	PunishmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_punishments_total",
		Help: "Total number of punishments applied",
	}, []string{"level"})

	PunishmentPointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_punishment_points_total",
		Help: "Sum of punishment points applied",
	})

	FeatureBlocksPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_feature_blocks_pruned_total",
		Help: "Total number of expired feature blocks removed by compaction",
	})
)

// Filter metrics
var (
	ContentRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_content_rejected_total",
		Help: "Total number of outgoing content items rejected by the term dictionary",
	})

	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_classifications_total",
		Help: "Total number of classifier verdicts by outcome",
	}, []string{"outcome"})

	DictionaryTermsLearnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_dictionary_terms_learned_total",
		Help: "Total number of terms added to the dictionary by the classifier",
	})
)

// Worker pool metrics
var (
	WorkerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_worker_tasks_total",
		Help: "Total number of detached tasks by result",
	}, []string{"result"})
)

// Reputation metrics
var (
	ReputationUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_reputation_updates_total",
		Help: "Total number of reputation ledger updates",
	}, []string{"category"})
)

// Gauges updated periodically by the collector
var (
	ReportsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_reports_by_status",
		Help: "Number of reports in each status",
	}, []string{"status"})

	DictionaryTerms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_dictionary_terms",
		Help: "Number of terms in the disallowed-term dictionary",
	})

	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_worker_queue_depth",
		Help: "Number of detached tasks waiting in the queue",
	})
)

// NormalizePath keeps the path label bounded; the operations listener serves
// a handful of fixed routes.
func NormalizePath(path string) string {
	switch path {
	case "/", "/metrics", "/healthz", "/readyz":
		return path
	}
	return "other"
}
