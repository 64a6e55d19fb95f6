// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianShapley/pkg/logging"
	"github.com/AleutianAI/AleutianShapley/services/shapley/approximator"
	"github.com/AleutianAI/AleutianShapley/services/shapley/config"
	"github.com/AleutianAI/AleutianShapley/services/shapley/exact"
	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
	"github.com/AleutianAI/AleutianShapley/services/shapley/interaction"
	"github.com/AleutianAI/AleutianShapley/services/shapley/telemetry"
)

// shutdownTimeout bounds the final telemetry flush.
const shutdownTimeout = 5 * time.Second

func runOwen(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	return owen(cmd.Context(), cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// owen runs one approximation as configured by cfg and writes the report
// to out. Telemetry exporters write to errOut.
func owen(ctx context.Context, cfg *config.RunConfig, logger *logging.Logger, out, errOut io.Writer) (err error) {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	tel, err := newRunTelemetry(cfg.Telemetry, errOut)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, tel.close(flushCtx))
	}()
	sink := tel.sink

	dummy, err := buildGame(cfg.Game)
	if err != nil {
		return err
	}

	opts := []approximator.Option{
		approximator.WithWorkers(cfg.Approximator.Workers),
		approximator.WithLogger(logger.Slog()),
	}
	if cfg.Approximator.Seed != nil {
		opts = append(opts, approximator.WithSeed(*cfg.Approximator.Seed))
	}
	estimator, err := approximator.NewOwenSamplingSV(cfg.Game.Players, cfg.Approximator.Anchors, opts...)
	if err != nil {
		return err
	}

	plan := estimator.Plan(cfg.Approximator.Budget)
	logger.Info("starting approximation",
		"players", cfg.Game.Players,
		"anchors", cfg.Approximator.Anchors,
		"budget", cfg.Approximator.Budget,
		"passes", plan.Passes,
		"calls", plan.Calls,
	)

	start := time.Now()
	counted := game.Count(dummy)
	values, err := estimator.Approximate(ctx, cfg.Approximator.Budget, counted)
	if err != nil {
		recordFailure(ctx, sink, logger, &telemetry.ErrorData{
			RunID:     runID,
			Component: estimator.Name(),
			Operation: "approximate",
			ErrorType: errorType(err),
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return fmt.Errorf("approximation failed: %w", err)
	}

	data := &telemetry.ApproximationData{
		RunID:        runID,
		Approximator: estimator.Name(),
		Players:      cfg.Game.Players,
		Anchors:      cfg.Approximator.Anchors,
		Budget:       cfg.Approximator.Budget,
		Used:         values.EstimationBudget,
		Unsampled:    len(values.Diagnostics.Unsampled),
		Duration:     time.Since(start),
		Timestamp:    start,
	}
	if err := sink.RecordApproximation(ctx, data); err != nil {
		logger.Warn("failed to record telemetry", "error", err)
	}
	logger.Info("approximation complete",
		"oracle_calls", counted.AccessCount(),
		"utilization", data.Utilization(),
		"duration", data.Duration,
	)

	var reference *interaction.Values
	if cfg.Output.CompareExact {
		reference, err = exact.ShapleyValues(ctx, dummy)
		if err != nil {
			return fmt.Errorf("exact comparison failed: %w", err)
		}
	}
	r, err := newReport(runID, values, reference)
	if err != nil {
		return err
	}
	return writeReport(out, cfg.Output.Format, r)
}

// recordFailure hands a failed run to the sink. A sink error does not
// replace the run error; it is logged at Warn.
func recordFailure(ctx context.Context, sink telemetry.Sink, logger *logging.Logger, data *telemetry.ErrorData) {
	if err := sink.RecordError(ctx, data); err != nil {
		logger.Warn("failed to record telemetry", "error", err, "run_id", data.RunID)
	}
}

// runTelemetry holds the telemetry wiring of one run.
type runTelemetry struct {
	sink        telemetry.Sink
	prom        *telemetry.PrometheusSink
	providers   *telemetry.Providers
	metricsFile string
}

// newRunTelemetry installs SDK providers and assembles the sinks selected
// by cfg. With neither stdout export nor a metrics file, every record is
// discarded.
func newRunTelemetry(cfg config.TelemetryConfig, errOut io.Writer) (*runTelemetry, error) {
	if !cfg.Stdout && cfg.MetricsFile == "" {
		return &runTelemetry{sink: telemetry.NoOpSink{}}, nil
	}

	var registry *prometheus.Registry
	if cfg.MetricsFile != "" {
		registry = prometheus.NewRegistry()
	}
	providerCfg := telemetry.ProviderConfig{
		ServiceName:    "shapley",
		ServiceVersion: version,
		Registry:       registry,
	}
	if cfg.Stdout {
		providerCfg.Stdout = errOut
	}
	providers, err := telemetry.InitProviders(providerCfg)
	if err != nil {
		return nil, err
	}
	tel := &runTelemetry{providers: providers, metricsFile: cfg.MetricsFile}

	otelCfg := telemetry.DefaultOTelConfig()
	otelCfg.ServiceVersion = version
	otelCfg.TracerProvider = providers.Tracer
	otelCfg.MeterProvider = providers.Meter
	otelSink, err := telemetry.NewOTelSink(otelCfg)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}
	sinks := []telemetry.Sink{otelSink}

	if registry != nil {
		tel.prom, err = telemetry.NewPrometheusSink(registry)
		if err != nil {
			return nil, errors.Join(err, providers.Shutdown(context.Background()))
		}
		sinks = append(sinks, tel.prom)
	}

	tel.sink, err = telemetry.NewCompositeSink(sinks...)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}
	return tel, nil
}

// close flushes the sinks, writes the metrics file, then shuts the
// providers down. The Prometheus bridge stops reporting once its provider
// is shut down, so the file is written first.
func (t *runTelemetry) close(ctx context.Context) error {
	errs := []error{t.sink.Flush(ctx)}
	if t.prom != nil {
		errs = append(errs, t.prom.WriteTextfile(t.metricsFile))
	}
	errs = append(errs, t.sink.Close())
	if t.providers != nil {
		errs = append(errs, t.providers.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// errorType classifies err for the errors_total label.
func errorType(err error) string {
	switch {
	case errors.Is(err, approximator.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, approximator.ErrPlayerMismatch):
		return "player_mismatch"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "oracle"
	}
}
