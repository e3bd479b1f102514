// Package metrics defines the Prometheus collectors for the generation
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tp"

// Metrics holds every collector the pipeline records to.
type Metrics struct {
	GeocodeRequests    *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	QueueEntries       *prometheus.CounterVec
	WorkerTicks        *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding provider calls by mode and outcome.",
		}, []string{"mode", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_cache_lookups_total",
			Help:      "Location cache lookups by result.",
		}, []string{"result"}),
		QueueEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_queue_entries_total",
			Help:      "Geocode queue entry transitions.",
		}, []string{"event"}),
		WorkerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_worker_ticks_total",
			Help:      "Geocode worker ticks by result.",
		}, []string{"result"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Itinerary generation jobs by kind and final status.",
		}, []string{"kind", "status"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation jobs.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.GeocodeRequests,
			m.CacheLookups,
			m.QueueEntries,
			m.WorkerTicks,
			m.Generations,
			m.GenerationDuration,
		)
	}
	return m
}

// Outcome classifies an error into a metric label. The sentinels are passed
// in so this package stays free of domain imports.
func Outcome(err error, labelled map[string]error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	for label, target := range labelled {
		if errors.Is(err, target) {
			return label
		}
	}
	return "error"
}

// GeocodeRequest counts one provider call.
func (m *Metrics) GeocodeRequest(mode, outcome string) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(mode, outcome).Inc()
}

// CacheLookup counts cache hits and misses from one lookup.
func (m *Metrics) CacheLookup(hits, misses int) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Add(float64(hits))
	m.CacheLookups.WithLabelValues("miss").Add(float64(misses))
}

// QueueEvent counts n queue entries that went through event
// (enqueued, completed, retried).
func (m *Metrics) QueueEvent(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.QueueEntries.WithLabelValues(event).Add(float64(n))
}

// WorkerTick counts a worker tick that ran or was skipped.
func (m *Metrics) WorkerTick(skipped bool) {
	if m == nil {
		return
	}
	result := "ran"
	if skipped {
		result = "skipped"
	}
	m.WorkerTicks.WithLabelValues(result).Inc()
}

// Generation records a finished generation job.
func (m *Metrics) Generation(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(kind, status).Inc()
	m.GenerationDuration.WithLabelValues(kind).Observe(d.Seconds())
}
