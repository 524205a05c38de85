// Package metrics exposes prometheus collectors for runs and source tasks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

const namespace = "event_comb"

var _ tasks.Recorder = (*Metrics)(nil)

type Metrics struct {
	registry *prometheus.Registry

	SourcesTotal    *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	EventsKept      prometheus.Counter
	EventsDiscarded prometheus.Counter
	RunsTotal       *prometheus.CounterVec
	RunsActive      prometheus.Gauge
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SourcesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sources_total",
				Help:      "Sources executed, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_duration_seconds",
				Help:      "Wall time of one source execution",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"mode"},
		),
		EventsKept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_merged_total",
			Help:      "Event candidates kept after dedup",
		}),
		EventsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Event candidates dropped as duplicates",
		}),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs, by final state",
			},
			[]string{"state"},
		),
		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently executing",
		}),
	}
}

func (m *Metrics) SourceFinished(mode source.Mode, kind tasks.OutcomeKind, elapsed time.Duration) {
	m.SourcesTotal.WithLabelValues(string(mode), string(kind)).Inc()
	m.SourceDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

func (m *Metrics) EventsMerged(added, discarded int) {
	m.EventsKept.Add(float64(added))
	m.EventsDiscarded.Add(float64(discarded))
}

func (m *Metrics) RunStarted() {
	m.RunsActive.Inc()
}

func (m *Metrics) RunFinished(state string) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
