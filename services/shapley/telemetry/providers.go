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
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProviderConfig selects the OpenTelemetry exporters for a CLI run.
type ProviderConfig struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// ServiceVersion is the version string for this process.
	ServiceVersion string

	// Stdout, when non-nil, receives pretty-printed spans and metrics.
	Stdout io.Writer

	// Registry, when non-nil, receives every OpenTelemetry metric through
	// the Prometheus bridge exporter.
	Registry *prometheus.Registry
}

// Providers holds the SDK providers installed by InitProviders.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
	}
	if err := p.Meter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
	}
	return errors.Join(errs...)
}

// InitProviders builds tracer and meter providers for cfg and installs
// them as the global OpenTelemetry providers.
//
// Description:
//
//	Spans go to a stdout exporter when cfg.Stdout is set and are dropped
//	otherwise. Metrics go to a stdout periodic reader and/or the
//	Prometheus bridge. The caller must call Shutdown before exit so
//	buffered spans and metrics are exported.
//
// Thread Safety: Call once at startup.
func InitProviders(cfg ProviderConfig) (*Providers, error) {
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Stdout != nil {
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithSyncer(spanExporter))

		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Stdout), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	}

	if cfg.Registry != nil {
		bridge, err := promexporter.New(promexporter.WithRegisterer(cfg.Registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(bridge))
	}

	providers := &Providers{
		Tracer: sdktrace.NewTracerProvider(traceOpts...),
		Meter:  sdkmetric.NewMeterProvider(meterOpts...),
	}
	otel.SetTracerProvider(providers.Tracer)
	otel.SetMeterProvider(providers.Meter)
	return providers, nil
}
