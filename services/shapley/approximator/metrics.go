// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approximator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for approximation runs.
var (
	tracer = otel.Tracer("aleutian.shapley.approximator")
	meter  = otel.Meter("aleutian.shapley.approximator")
)

var (
	approximateLatency metric.Float64Histogram
	approximateTotal   metric.Int64Counter
	oracleCalls        metric.Int64Counter
	unsampledPlayers   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		approximateLatency, err = meter.Float64Histogram(
			"owen_approximate_duration_seconds",
			metric.WithDescription("Duration of Shapley approximation runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		approximateTotal, err = meter.Int64Counter(
			"owen_approximate_total",
			metric.WithDescription("Total number of Shapley approximation runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		oracleCalls, err = meter.Int64Counter(
			"owen_oracle_calls_total",
			metric.WithDescription("Total number of value-function evaluations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unsampledPlayers, err = meter.Int64Counter(
			"owen_unsampled_players_total",
			metric.WithDescription("Players left without samples by a small budget"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordApproximateMetrics records metrics for one Approximate call.
func recordApproximateMetrics(ctx context.Context, index string, duration time.Duration, calls, unsampled int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("index", index),
		attribute.Bool("success", success),
	)

	approximateLatency.Record(ctx, duration.Seconds(), attrs)
	approximateTotal.Add(ctx, 1, attrs)
	oracleCalls.Add(ctx, int64(calls), attrs)
	if unsampled > 0 {
		unsampledPlayers.Add(ctx, int64(unsampled), attrs)
	}
}

// startApproximateSpan creates a span for an Approximate call.
func startApproximateSpan(ctx context.Context, n, m, budget int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "owen.approximate",
		trace.WithAttributes(
			attribute.Int("shapley.players", n),
			attribute.Int("shapley.anchors", m),
			attribute.Int("shapley.budget", budget),
		),
	)
}

// setApproximateSpanResult sets the result attributes on an approximate span.
func setApproximateSpanResult(span trace.Span, alloc Allocation, used, unsampled int) {
	span.SetAttributes(
		attribute.Int("shapley.passes", alloc.Passes),
		attribute.Int("shapley.remainder_pairs", alloc.RemainderPairs),
		attribute.Int("shapley.calls_used", used),
		attribute.Int("shapley.unsampled", unsampled),
	)
}
