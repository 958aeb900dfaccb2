package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sedori-tools/repricer/internal/repricer"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_runs_total",
			Help: "Total number of repricing runs",
		},
		[]string{"mode", "trigger", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repricer_run_duration_seconds",
			Help:    "Repricing run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	// Row outcome metrics
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_rows_total",
			Help: "Listing rows processed, by outcome",
		},
		[]string{"outcome"},
	)

	RulesDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repricer_rules_degraded_total",
			Help: "Runs evaluated against an unusable rule table",
		},
	)

	ConfigUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_config_updates_total",
			Help: "Rule table update attempts",
		},
		[]string{"status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_events_published_total",
			Help: "Run events handed to the broker",
		},
		[]string{"type", "status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRun records a finished run and its row outcomes
func RecordRun(mode repricer.Mode, trigger, status string, summary repricer.Summary, duration time.Duration) {
	RunsTotal.WithLabelValues(string(mode), trigger, status).Inc()
	RunDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())

	unchanged := summary.TotalRows - summary.UpdatedRows - summary.ExcludedRows - summary.DateUnknownRows
	if unchanged < 0 {
		unchanged = 0
	}
	RowsTotal.WithLabelValues("updated").Add(float64(summary.UpdatedRows))
	RowsTotal.WithLabelValues("excluded").Add(float64(summary.ExcludedRows))
	RowsTotal.WithLabelValues("date_unknown").Add(float64(summary.DateUnknownRows))
	RowsTotal.WithLabelValues("seasonal_switched").Add(float64(summary.SeasonalSwitchedRows))
	RowsTotal.WithLabelValues("failed").Add(float64(summary.FailedRows))
	RowsTotal.WithLabelValues("unchanged").Add(float64(unchanged))
}

// RecordRulesDegraded records a run that fell back to the safe no-op table
func RecordRulesDegraded() {
	RulesDegraded.Inc()
}

// RecordConfigUpdate records a rule table update attempt
func RecordConfigUpdate(status string) {
	ConfigUpdates.WithLabelValues(status).Inc()
}

// RecordEventPublished records an event publish attempt
func RecordEventPublished(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	ErrorsTotal.WithLabelValues(errorType, component).Inc()
}
