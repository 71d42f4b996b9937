// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and trace wiring for the advisor.
//
// # Description
//
// This package implements Prometheus metrics for monitoring consultation
// turns. Metrics include:
//   - Turn counters (by transport, outcome)
//   - Turn latency and reasoning-round histograms
//   - Retrieval quality (average similarity of shown candidates)
//   - Enhancement flag counters and redirect counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint in serve mode. Use with
// Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "somnus"

// Subsystem for consultation metrics
const advisorSubsystem = "advisor"

// Outcome labels one finished turn for metrics.
type Outcome string

const (
	// OutcomeAnswered is a grounded recommendation.
	OutcomeAnswered Outcome = "answered"

	// OutcomeRedirected is an out-of-domain turn.
	OutcomeRedirected Outcome = "redirected"

	// OutcomeNoMatch means no candidate survived the constraints.
	OutcomeNoMatch Outcome = "no_match"

	// OutcomeDegraded is a templated answer after generation failure.
	OutcomeDegraded Outcome = "degraded"

	// OutcomeError is a failed turn (retrieval unavailable).
	OutcomeError Outcome = "error"
)

// Transport labels where a turn came from.
type Transport string

const (
	TransportCLI       Transport = "cli"
	TransportHTTP      Transport = "http"
	TransportWebsocket Transport = "websocket"
)

// AdvisorMetrics holds all Prometheus metrics for consultation turns.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring turn quality
// and resource usage. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type AdvisorMetrics struct {
	// TurnsTotal counts turns by transport and outcome.
	// Labels: transport (cli, http, websocket), outcome (answered, ...)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures wall-clock turn latency.
	// Labels: outcome
	TurnDurationSeconds *prometheus.HistogramVec

	// ReasoningRounds measures retrieve/synthesize rounds per turn.
	ReasoningRounds prometheus.Histogram

	// AvgSimilarity measures the mean shown-candidate score per turn.
	AvgSimilarity prometheus.Histogram

	// EnhancementsTotal counts enhancement flags recorded on turns.
	// Labels: enhancement (gpt-synonyms, budget-relaxed, ...)
	EnhancementsTotal *prometheus.CounterVec

	// RedirectsTotal counts out-of-domain redirects by matched category.
	// Labels: category (furniture, appliance, food, weather, other)
	RedirectsTotal *prometheus.CounterVec

	// CatalogProducts tracks the size of the serving catalog snapshot.
	CatalogProducts prometheus.Gauge

	// ActiveChatSessions tracks open interactive sessions.
	// Labels: transport
	ActiveChatSessions *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance of AdvisorMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *AdvisorMetrics

// NewMetrics creates and registers the metric set on reg.
//
// # Limitations
//
//   - Registering the same set twice on one registry panics (Prometheus
//     duplicate registration).
func NewMetrics(reg prometheus.Registerer) *AdvisorMetrics {
	factory := promauto.With(reg)

	return &AdvisorMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "turns_total",
				Help:      "Total consultation turns by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),

		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Wall-clock duration of one consultation turn",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"outcome"},
		),

		ReasoningRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "reasoning_rounds",
				Help:      "Retrieve/synthesize rounds per turn",
				Buckets:   []float64{1, 2, 3},
			},
		),

		AvgSimilarity: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "avg_similarity",
				Help:      "Mean post-filter score of the shown candidates",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		EnhancementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "enhancements_total",
				Help:      "Enhancement flags recorded on turns",
			},
			[]string{"enhancement"},
		),

		RedirectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "redirects_total",
				Help:      "Out-of-domain redirects by matched category",
			},
			[]string{"category"},
		),

		CatalogProducts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "catalog_products",
				Help:      "Products in the serving catalog snapshot",
			},
		),

		ActiveChatSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "active_chat_sessions",
				Help:      "Open interactive sessions",
			},
			[]string{"transport"},
		),
	}
}

// InitMetrics initializes the default metrics instance on the default
// Prometheus registry. Call once at startup.
func InitMetrics() *AdvisorMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records one finished turn.
//
// # Inputs
//
//   - transport: Where the turn came from.
//   - outcome: How it ended.
//   - seconds: Wall-clock duration.
//   - rounds: Reasoning rounds that ran (0 for redirects).
//   - avgSimilarity: Mean shown-candidate score (0 when nothing shown).
func (m *AdvisorMetrics) RecordTurn(transport Transport, outcome Outcome, seconds float64, rounds int, avgSimilarity float64) {
	m.TurnsTotal.WithLabelValues(string(transport), string(outcome)).Inc()
	m.TurnDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
	if rounds > 0 {
		m.ReasoningRounds.Observe(float64(rounds))
	}
	if avgSimilarity > 0 {
		m.AvgSimilarity.Observe(avgSimilarity)
	}
}

// RecordEnhancements bumps one counter per recorded flag.
func (m *AdvisorMetrics) RecordEnhancements(flags []string) {
	for _, f := range flags {
		m.EnhancementsTotal.WithLabelValues(f).Inc()
	}
}

// RecordRedirect counts one out-of-domain redirect.
func (m *AdvisorMetrics) RecordRedirect(category string) {
	if category == "" {
		category = "other"
	}
	m.RedirectsTotal.WithLabelValues(category).Inc()
}

// SetCatalogSize publishes the serving snapshot size.
func (m *AdvisorMetrics) SetCatalogSize(products int) {
	m.CatalogProducts.Set(float64(products))
}

// ChatStarted increments the active sessions gauge.
func (m *AdvisorMetrics) ChatStarted(transport Transport) {
	m.ActiveChatSessions.WithLabelValues(string(transport)).Inc()
}

// ChatEnded decrements the active sessions gauge.
func (m *AdvisorMetrics) ChatEnded(transport Transport) {
	m.ActiveChatSessions.WithLabelValues(string(transport)).Dec()
}
