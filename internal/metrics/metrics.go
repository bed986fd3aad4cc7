package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful report runs and upstream calls.
	OutcomeSuccess = "success"
	// OutcomeError labels failed report runs and upstream calls.
	OutcomeError = "error"
)

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crash_radar",
			Name:      "reports_total",
			Help:      "Total number of report runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	reportDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "crash_radar",
			Name:      "report_seconds",
			Help:      "Report run latency in seconds, dominated by upstream window fetches.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	sentryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crash_radar",
			Name:      "sentry_requests_total",
			Help:      "Upstream Sentry API requests, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	degradedBaselinePeriodsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crash_radar",
			Name:      "baseline_degraded_periods_total",
			Help:      "Baseline periods zero-filled after a failed upstream fetch.",
		},
	)
)

// Register attaches crash-radar collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		reportDurationSeconds,
		sentryRequestsTotal,
		degradedBaselinePeriodsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReport records a report run duration and outcome label.
func ObserveReport(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	reportsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	reportDurationSeconds.Observe(duration.Seconds())
}

// ObserveSentryRequest counts one upstream API request.
func ObserveSentryRequest(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	sentryRequestsTotal.WithLabelValues(label).Inc()
}

// ObserveDegradedBaselinePeriod counts a zero-filled baseline period.
func ObserveDegradedBaselinePeriod() {
	degradedBaselinePeriodsTotal.Inc()
}
