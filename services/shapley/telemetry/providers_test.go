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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/metric"
)

func TestInitProviders_StdoutAndBridge(t *testing.T) {
	var out bytes.Buffer
	registry := prometheus.NewRegistry()

	providers, err := InitProviders(ProviderConfig{
		ServiceName:    "shapley-test",
		ServiceVersion: "test",
		Stdout:         &out,
		Registry:       registry,
	})
	if err != nil {
		t.Fatalf("InitProviders failed: %v", err)
	}

	ctx := context.Background()
	_, span := providers.Tracer.Tracer("test").Start(ctx, "owen.approximate")
	span.End()

	counter, err := providers.Meter.Meter("test").Int64Counter("shapley_test_calls", metric.WithDescription("test calls"))
	if err != nil {
		t.Fatalf("Int64Counter failed: %v", err)
	}
	counter.Add(ctx, 7)

	if n, err := testutil.GatherAndCount(registry, "shapley_test_calls_total"); err != nil || n != 1 {
		t.Errorf("bridged series = %d (err %v), want 1", n, err)
	}

	if err := providers.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(out.String(), "owen.approximate") {
		t.Error("stdout exporter should have written the span")
	}
}
