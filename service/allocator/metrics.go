// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsSubSystemAllocator = "allocator"

// Metrics is the Prometheus-backed counterpart of C6's decision points:
// cycles run, oversending cycles, predictor fallbacks by reason, and
// events emitted by type. Grounded on service/perf.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Cycles            *prometheus.CounterVec
	OversendingCycles prometheus.Counter
	PredictorFallback *prometheus.CounterVec
	EventsEmitted     *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance. When registry is nil a private
// one is created with the process and Go collectors registered, exactly
// as service/perf.NewMetrics does.
func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	var m Metrics

	if registry != nil {
		m.registry = registry
	} else {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: namespace,
		}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAllocator,
			Name:      "cycles_total",
			Help:      "Total number of allocation cycles run, by algorithm used",
		},
		[]string{"algorithm"},
	)
	m.registry.MustRegister(m.Cycles)

	m.OversendingCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAllocator,
			Name:      "oversending_cycles_total",
			Help:      "Total number of allocation cycles that ended oversending",
		},
	)
	m.registry.MustRegister(m.OversendingCycles)

	m.PredictorFallback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAllocator,
			Name:      "predictor_fallbacks_total",
			Help:      "Total number of cycles that fell back to the greedy algorithm, by reason",
		},
		[]string{"reason"},
	)
	m.registry.MustRegister(m.PredictorFallback)

	m.EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAllocator,
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted to subscribers, by type",
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.EventsEmitted)

	return &m
}

func (m *Metrics) IncCycle(algorithm string) {
	m.Cycles.With(prometheus.Labels{"algorithm": algorithm}).Inc()
}

func (m *Metrics) IncOversendingCycle() {
	m.OversendingCycles.Inc()
}

func (m *Metrics) IncPredictorFallback(reason string) {
	m.PredictorFallback.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *Metrics) IncEventEmitted(eventType string) {
	m.EventsEmitted.With(prometheus.Labels{"type": eventType}).Inc()
}

// Handler exposes the registry backing these metrics as an http.Handler
// suitable for registering under /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
