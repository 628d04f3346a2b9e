// Package metrics holds the prometheus collectors shared by the matcher, the
// backfill driver, the geometry store and the dispatcher. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's collectors. Record through the Observe and Add
// methods so a nil receiver stays safe.
type Metrics struct {
	Matches       *prometheus.CounterVec
	MatchDuration prometheus.Histogram

	BackfillRuns       prometheus.Counter
	BackfillActivities *prometheus.CounterVec

	GeometryCache *prometheus.CounterVec

	Dispatches       *prometheus.CounterVec
	InflightDispatch prometheus.Gauge
	QueuedDispatch   prometheus.Gauge
}

const (
	ns = "rabbitmiles"

	LabelStatus = "status"
	LabelResult = "result"
	LabelTarget = "target"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"

	ResultFound         = "found"
	ResultQueued        = "queued"
	ResultFailedToQueue = "failed_to_queue"

	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultPanicked = "panicked"
)

// New creates the collectors and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Matches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "matches_total", Namespace: ns,
			Help: "The number of activity match attempts, by outcome status (success, skipped, failed).",
		}, []string{LabelStatus}),
		MatchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "match_duration_seconds", Namespace: ns,
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			Help:    "The time taken to match a single activity, including geometry load and the storage write.",
		}),

		BackfillRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "backfill_runs_total", Namespace: ns,
			Help: "The number of backfill runs that completed their scan.",
		}),
		BackfillActivities: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_activities_total", Namespace: ns,
			Help: "Activities seen by backfill runs, by result (found, queued, failed_to_queue).",
		}, []string{LabelResult}),

		GeometryCache: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geometry_cache_total", Namespace: ns,
			Help: "Trail geometry lookups, by result (hit, miss, error).",
		}, []string{LabelResult}),

		Dispatches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dispatches_total", Namespace: ns,
			Help: "Asynchronous invocations, by target and admission result.",
		}, []string{LabelTarget, LabelResult}),
		InflightDispatch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "inflight_dispatches", Namespace: ns,
			Help: "The number of in-process invocations currently running.",
		}),
		QueuedDispatch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "queued_dispatches", Namespace: ns,
			Help: "The number of accepted in-process invocations waiting for a worker.",
		}),
	}
}

// ObserveMatch records the outcome and duration of one match attempt.
func (m *Metrics) ObserveMatch(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(status).Inc()
	m.MatchDuration.Observe(elapsed.Seconds())
}

// ObserveBackfill records the counts from one completed backfill run.
func (m *Metrics) ObserveBackfill(found, queued, failed int) {
	if m == nil {
		return
	}
	m.BackfillRuns.Inc()
	m.BackfillActivities.WithLabelValues(ResultFound).Add(float64(found))
	m.BackfillActivities.WithLabelValues(ResultQueued).Add(float64(queued))
	m.BackfillActivities.WithLabelValues(ResultFailedToQueue).Add(float64(failed))
}

// ObserveGeometry records a geometry cache lookup.
func (m *Metrics) ObserveGeometry(result string) {
	if m == nil {
		return
	}
	m.GeometryCache.WithLabelValues(result).Inc()
}

// ObserveDispatch records an admission decision for an invocation.
func (m *Metrics) ObserveDispatch(target, result string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(target, result).Inc()
}

// InflightAdd adjusts the in-flight invocation gauge.
func (m *Metrics) InflightAdd(delta float64) {
	if m == nil {
		return
	}
	m.InflightDispatch.Add(delta)
}

// QueuedAdd adjusts the queued invocation gauge.
func (m *Metrics) QueuedAdd(delta float64) {
	if m == nil {
		return
	}
	m.QueuedDispatch.Add(delta)
}
