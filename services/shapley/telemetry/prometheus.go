// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	shapleySubsystem = "shapley"
)

// ErrNilRegistry is returned when no Prometheus registry is supplied.
var ErrNilRegistry = errors.New("prometheus registry must not be nil")

// PrometheusSink records run telemetry as Prometheus metrics.
//
// Description:
//
//	Metrics are registered on a caller-supplied registry so several sinks
//	and tests never collide on the default registry. WriteTextfile dumps
//	the registry in the node-exporter textfile format for one-shot CLI
//	runs that have no scrape endpoint.
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	registry *prometheus.Registry

	// RunsTotal counts runs by approximator and status (success, error).
	RunsTotal *prometheus.CounterVec

	// OracleCallsTotal counts value-function evaluations by approximator.
	OracleCallsTotal *prometheus.CounterVec

	// RunDurationSeconds measures run duration by approximator.
	RunDurationSeconds *prometheus.HistogramVec

	// BudgetUtilization measures used/budget by approximator.
	BudgetUtilization *prometheus.HistogramVec

	// UnsampledPlayers is the unsampled player count of the latest run.
	UnsampledPlayers *prometheus.GaugeVec

	// ErrorsTotal counts failures by component and error type.
	ErrorsTotal *prometheus.CounterVec

	mu     sync.RWMutex
	closed bool
}

// NewPrometheusSink creates the sink's metrics on registry.
//
// Outputs:
//   - *PrometheusSink: The sink. Nil on error.
//   - error: ErrNilRegistry when registry is nil.
func NewPrometheusSink(registry *prometheus.Registry) (*PrometheusSink, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	factory := promauto.With(registry)

	return &PrometheusSink{
		registry: registry,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "runs_total",
				Help:      "Total approximation runs by approximator and status",
			},
			[]string{"approximator", "status"},
		),
		OracleCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "oracle_calls_total",
				Help:      "Total value-function evaluations by approximator",
			},
			[]string{"approximator"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "run_duration_seconds",
				Help:      "Approximation run duration in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"approximator"},
		),
		BudgetUtilization: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "budget_utilization_ratio",
				Help:      "Fraction of the oracle budget spent per run",
				Buckets:   []float64{0.5, 0.9, 0.99, 1},
			},
			[]string{"approximator"},
		),
		UnsampledPlayers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "unsampled_players",
				Help:      "Players left without samples by the latest run",
			},
			[]string{"approximator"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: shapleySubsystem,
				Name:      "errors_total",
				Help:      "Total failed runs by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}, nil
}

// RecordApproximation records a completed run.
func (p *PrometheusSink) RecordApproximation(ctx context.Context, data *ApproximationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if p.isClosed() {
		return ErrSinkClosed
	}

	name := orUnknown(data.Approximator)
	p.RunsTotal.WithLabelValues(name, "success").Inc()
	p.OracleCallsTotal.WithLabelValues(name).Add(float64(data.Used))
	p.RunDurationSeconds.WithLabelValues(name).Observe(data.Duration.Seconds())
	p.BudgetUtilization.WithLabelValues(name).Observe(data.Utilization())
	p.UnsampledPlayers.WithLabelValues(name).Set(float64(data.Unsampled))
	return nil
}

// RecordError records a failed run.
func (p *PrometheusSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if p.isClosed() {
		return ErrSinkClosed
	}

	component := orUnknown(data.Component)
	p.RunsTotal.WithLabelValues(component, "error").Inc()
	p.ErrorsTotal.WithLabelValues(component, orUnknown(data.ErrorType)).Inc()
	return nil
}

// Flush is a no-op; the registry is read on scrape or WriteTextfile.
func (p *PrometheusSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if p.isClosed() {
		return ErrSinkClosed
	}
	return nil
}

// Close marks the sink closed. Idempotent.
func (p *PrometheusSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WriteTextfile writes every metric on the registry to path in the
// node-exporter textfile format.
func (p *PrometheusSink) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}

func (p *PrometheusSink) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
