package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	constructions prometheus.Counter
	evictions     prometheus.Counter
	full          prometheus.Counter
	bad           prometheus.Counter
	refreshes     prometheus.Counter
	entries       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_hits_total",
			Help: "Lookups served by an existing entry.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_misses_total",
			Help: "Lookups that had to allocate an entry.",
		}),
		constructions: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_constructions_total",
			Help: "Blend spaces built, including rebuilds of bad entries.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_evictions_total",
			Help: "Unreferenced entries evicted under memory pressure.",
		}),
		full: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_full_total",
			Help: "Lookups refused because every entry was in use.",
		}),
		bad: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_bad_entries_total",
			Help: "Constructions that left the entry marked bad.",
		}),
		refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "gesture_cache_refreshes_total",
			Help: "Entries refreshed after the clip table changed.",
		}),
		entries: f.NewGauge(prometheus.GaugeOpts{
			Name: "gesture_cache_entries",
			Help: "Entries currently allocated.",
		}),
	}
}
