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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationScope = "github.com/AleutianAI/AleutianShapley/services/shapley/telemetry"

var (
	// ErrOTelInitFailed is returned when OpenTelemetry initialization fails.
	ErrOTelInitFailed = errors.New("opentelemetry initialization failed")

	// ErrInvalidOTelConfig is returned when the OTel configuration is invalid.
	ErrInvalidOTelConfig = errors.New("invalid opentelemetry configuration")
)

// OTelConfig configures the OpenTelemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type OTelConfig struct {
	// ServiceName is the service name for telemetry. Required.
	ServiceName string

	// ServiceVersion is the instrumentation version. Optional.
	ServiceVersion string

	// TracerProvider is the tracer provider to use.
	// If nil, uses the global tracer provider.
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If nil, uses the global meter provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled enables span creation.
	TraceEnabled bool

	// MetricsEnabled enables metric recording.
	MetricsEnabled bool
}

// DefaultOTelConfig returns a configuration with tracing and metrics enabled.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "shapley",
		ServiceVersion: "1.0.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Validate checks that required fields are set.
func (c *OTelConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// OTelSink exports run telemetry via OpenTelemetry.
//
// Description:
//
//	Each record becomes one span, named "approximation.record" or
//	"error.record", and updates the run metrics. The sink does not own
//	the providers; the caller flushes and shuts them down.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer
	meter  metric.Meter

	runDuration metric.Float64Histogram
	runsTotal   metric.Int64Counter
	oracleCalls metric.Int64Counter
	utilization metric.Float64Histogram
	unsampled   metric.Int64Counter
	errorsTotal metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates a new OpenTelemetry sink.
//
// Inputs:
//   - config: OpenTelemetry configuration. Must not be nil.
//
// Outputs:
//   - *OTelSink: The created sink. Never nil on success.
//   - error: ErrInvalidOTelConfig or ErrOTelInitFailed, joined with the cause.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidOTelConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidOTelConfig, err)
	}

	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	sink := &OTelSink{
		config: &cfg,
		tracer: tp.Tracer(instrumentationScope, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:  mp.Meter(instrumentationScope, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
	}

	if cfg.MetricsEnabled {
		if err := sink.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrOTelInitFailed, err)
		}
	}
	return sink, nil
}

func (s *OTelSink) initializeMetrics() error {
	var err error

	s.runDuration, err = s.meter.Float64Histogram(
		"shapley.run.duration",
		metric.WithDescription("Approximation run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.runsTotal, err = s.meter.Int64Counter(
		"shapley.runs",
		metric.WithDescription("Total approximation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	s.oracleCalls, err = s.meter.Int64Counter(
		"shapley.oracle.calls",
		metric.WithDescription("Total value-function evaluations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	s.utilization, err = s.meter.Float64Histogram(
		"shapley.budget.utilization",
		metric.WithDescription("Fraction of the budget spent per run"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	s.unsampled, err = s.meter.Int64Counter(
		"shapley.players.unsampled",
		metric.WithDescription("Players left without samples"),
		metric.WithUnit("{player}"),
	)
	if err != nil {
		return err
	}

	s.errorsTotal, err = s.meter.Int64Counter(
		"shapley.errors",
		metric.WithDescription("Total failed runs"),
		metric.WithUnit("{error}"),
	)
	return err
}

// RecordApproximation records a completed run.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - data: Run data. Must not be nil.
//
// Outputs:
//   - error: ErrNilContext, ErrNilData or ErrSinkClosed.
func (s *OTelSink) RecordApproximation(ctx context.Context, data *ApproximationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if s.isClosed() {
		return ErrSinkClosed
	}

	name := data.Approximator
	if name == "" {
		name = "unknown"
	}

	attrs := []attribute.KeyValue{
		attribute.String("approximator", name),
		attribute.Int("players", data.Players),
		attribute.Int("anchors", data.Anchors),
	}
	for k, v := range data.Labels {
		attrs = append(attrs, attribute.String("label."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "approximation.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(
			attribute.String("run_id", data.RunID),
			attribute.Int("budget", data.Budget),
			attribute.Int("used", data.Used),
			attribute.Int("unsampled", data.Unsampled),
			attribute.Float64("duration_seconds", data.Duration.Seconds()),
		)
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(attrs...)
		s.runDuration.Record(ctx, data.Duration.Seconds(), attrSet)
		s.runsTotal.Add(ctx, 1, attrSet)
		s.oracleCalls.Add(ctx, int64(data.Used), attrSet)
		s.utilization.Record(ctx, data.Utilization(), attrSet)
		if data.Unsampled > 0 {
			s.unsampled.Add(ctx, int64(data.Unsampled), attrSet)
		}
	}
	return nil
}

// RecordError records a failed run.
func (s *OTelSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if s.isClosed() {
		return ErrSinkClosed
	}

	component := orUnknown(data.Component)
	operation := orUnknown(data.Operation)
	errorType := orUnknown(data.ErrorType)

	if s.config.TraceEnabled {
		attrs := []attribute.KeyValue{
			attribute.String("run_id", data.RunID),
			attribute.String("error.component", component),
			attribute.String("error.operation", operation),
			attribute.String("error.type", errorType),
			attribute.String("error.message", data.Message),
		}
		for k, v := range data.Labels {
			attrs = append(attrs, attribute.String("label."+k, v))
		}
		_, span := s.tracer.Start(ctx, "error.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetStatus(codes.Error, data.Message)
		span.End()
	}

	if s.config.MetricsEnabled {
		s.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
	return nil
}

// Flush is a no-op; the providers own batching and export.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if s.isClosed() {
		return ErrSinkClosed
	}
	return nil
}

// Close marks the sink closed. It does not shut down the providers.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *OTelSink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
