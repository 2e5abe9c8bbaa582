// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "forge"

// Metrics holds the Prometheus collectors fed by pipeline events.
//
// # Fields
//
//   - AttemptsTotal: Attempts by outcome (accepted, retry, failed, canceled)
//   - AttemptDuration: Wall time of each attempt
//   - IssuesTotal: Issues found by detector and severity
//   - RepairsTotal: Repairs by result (applied, discarded)
//   - PipelinesTotal: Finished pipelines by result and failure kind
//   - BreakerTransitions: Circuit breaker transitions by target state
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	AttemptsTotal      *prometheus.CounterVec
	AttemptDuration    prometheus.Histogram
	IssuesTotal        *prometheus.CounterVec
	RepairsTotal       *prometheus.CounterVec
	PipelinesTotal     *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attempts_total",
			Help:      "Total generation attempts by outcome",
		}, []string{"outcome"}),
		AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of one generation attempt in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		IssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "issues_total",
			Help:      "Validation issues found by detector and severity",
		}, []string{"detector", "severity"}),
		RepairsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "repairs_total",
			Help:      "Structural repairs by result",
		}, []string{"result"}),
		PipelinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pipelines_total",
			Help:      "Finished pipelines by result and failure kind",
		}, []string{"result", "kind"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by target state",
		}, []string{"to"}),
	}
}

// Emit implements Sink.
func (m *Metrics) Emit(_ context.Context, e Event) {
	switch e.Type {
	case AttemptFinished:
		m.AttemptsTotal.WithLabelValues(e.Outcome).Inc()
		m.AttemptDuration.Observe(e.Duration.Seconds())
	case IssueFound:
		if e.Issue != nil {
			m.IssuesTotal.WithLabelValues(e.Issue.Detector, string(e.Issue.Severity)).Inc()
		}
	case RepairApplied:
		m.RepairsTotal.WithLabelValues("applied").Inc()
	case RepairDiscarded:
		m.RepairsTotal.WithLabelValues("discarded").Inc()
	case ArtifactAccepted:
		m.PipelinesTotal.WithLabelValues("accepted", "").Inc()
	case ArtifactFailed:
		m.PipelinesTotal.WithLabelValues("failed", e.Kind).Inc()
	case BreakerChanged:
		m.BreakerTransitions.WithLabelValues(e.Outcome).Inc()
	}
}
