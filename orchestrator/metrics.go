// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the orchestrator.
type Metrics struct {
	SearchesTotal   *prometheus.CounterVec
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	FallbackDepth   prometheus.Histogram
}

// NewMetrics creates and registers the orchestrator instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisearch_searches_total",
				Help: "Total unified searches by category and outcome",
			},
			[]string{"category", "status"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisearch_provider_attempts_total",
				Help: "Provider dispatch attempts by provider and error kind (kind empty on success)",
			},
			[]string{"provider", "kind"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omnisearch_provider_attempt_duration_milliseconds",
				Help:    "Provider attempt duration in milliseconds",
				Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
			},
			[]string{"provider"},
		),
		FallbackDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "omnisearch_fallback_depth",
				Help:    "Number of providers tried before a search resolved",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.SearchesTotal, m.AttemptsTotal, m.AttemptDuration, m.FallbackDepth)
	}
	return m
}

func (m *Metrics) observeAttempt(provider string, kind ErrorKind, durationMS int64) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(provider, string(kind)).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(float64(durationMS))
}

func (m *Metrics) observeSearch(category Category, success bool, attempts int) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.SearchesTotal.WithLabelValues(string(category), status).Inc()
	m.FallbackDepth.Observe(float64(attempts))
}
