package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_decisions_total",
		Help: "Retry decisions taken for finished builds by outcome reason",
	}, []string{"job", "reason"})

	GateResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_gate_results_total",
		Help: "Results of checking build logs against the gating pattern",
	}, []string{"job", "result"})

	// LogScanErrors counts retries that went ahead because the log could not be read
	LogScanErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_log_scan_errors_total",
		Help: "Number of build log scans that failed and let the retry through",
	}, []string{"job"})

	RetriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_retries_scheduled_total",
		Help: "The total number of scheduled build retries by job",
	}, []string{"job"})

	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_max_retries_reached_total",
		Help: "Number of builds that reached maximum retry attempts",
	}, []string{"job"})

	RetryDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rerunner_retry_delay_seconds",
		Help:    "Delay applied before resubmitting a build",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1s up to ~3 days
	}, []string{"job"})

	// Retry queue metrics
	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rerunner_retry_queue_size",
		Help: "Current size of the retry queue",
	})

	NextRetryIn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rerunner_next_retry_seconds",
		Help: "Seconds until the next scheduled retry",
	})

	RetriesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_retries_executed_total",
		Help: "Number of retries that were submitted to the build host",
	}, []string{"job"})

	RetriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_retries_skipped_total",
		Help: "Number of retries that were skipped",
	}, []string{"job", "reason"})

	DroppedRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_retries_dropped_total",
		Help: "Number of retries that were dropped due to queue capacity",
	}, []string{"job"})

	SubmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_submit_errors_total",
		Help: "Number of failed resubmissions to the build host",
	}, []string{"job"})

	// Fan-out metrics
	MarkersAttached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_markers_total",
		Help: "Attempts to attach a retry marker to a build record by outcome",
	}, []string{"outcome"})

	FanoutMembersSelected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rerunner_fanout_members_selected",
		Help:    "Number of fan-out members selected for a rerun",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	MarkersStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rerunner_markers_stored",
		Help: "Number of build records currently carrying a retry marker",
	})

	CircuitsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rerunner_circuits_open",
		Help: "Number of jobs whose resubmission circuit breaker is open",
	})

	FanoutFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rerunner_fanout_filter_fallbacks_total",
		Help: "Fan-out reruns where the combination filter selected nothing and all failing members were taken",
	}, []string{"job"})
)
