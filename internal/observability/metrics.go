package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marathon"

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync run that finished with SUCCESS.",
	})
	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Finished sync runs labeled by terminal status.",
	}, []string{"status"})
	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full sync run.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	athleteOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "athletes_total",
		Help:      "Per-athlete sync outcomes labeled success, auth_error, transient_error, skipped or failed.",
	}, []string{"outcome"})
	summariesByStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "summaries_total",
		Help:      "Daily summaries written labeled by status.",
	}, []string{"status"})
	stravaRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "requests_total",
		Help:      "Strava API calls labeled by outcome.",
	}, []string{"outcome"})
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})
	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification attempts labeled by channel and outcome.",
	}, []string{"channel", "outcome"})
)

func init() {
	prometheus.MustRegister(
		activityPersistGauge,
		lastSuccessGauge,
		syncRuns,
		syncDuration,
		athleteOutcomes,
		summariesByStatus,
		stravaRequests,
		breakerState,
		notifications,
	)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordSyncRun counts a finished run and moves the success watermark.
func RecordSyncRun(status string, started, finished time.Time) {
	syncRuns.WithLabelValues(status).Inc()
	if !started.IsZero() && finished.After(started) {
		syncDuration.Observe(finished.Sub(started).Seconds())
	}
	if status == "SUCCESS" {
		lastSuccessGauge.Set(float64(finished.Unix()))
	}
}

// RecordAthleteOutcome counts one athlete's result within a run.
func RecordAthleteOutcome(outcome string) {
	athleteOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSummary counts a written daily summary.
func RecordSummary(status string) {
	summariesByStatus.WithLabelValues(status).Inc()
}

// RecordStravaRequest counts an external API call.
func RecordStravaRequest(outcome string) {
	stravaRequests.WithLabelValues(outcome).Inc()
}

// SetBreakerState publishes the numeric breaker state.
func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

// RecordNotification counts one channel attempt.
func RecordNotification(channel string, delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	notifications.WithLabelValues(channel, outcome).Inc()
}
