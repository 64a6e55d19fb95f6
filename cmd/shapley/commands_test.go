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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/AleutianAI/AleutianShapley/pkg/logging"
	"github.com/AleutianAI/AleutianShapley/pkg/ux"
	"github.com/AleutianAI/AleutianShapley/services/shapley/approximator"
	"github.com/AleutianAI/AleutianShapley/services/shapley/config"
	"github.com/AleutianAI/AleutianShapley/services/shapley/eval"
	"github.com/AleutianAI/AleutianShapley/services/shapley/exact"
	"github.com/AleutianAI/AleutianShapley/services/shapley/telemetry"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func seededConfig(seed uint64) *config.RunConfig {
	cfg := config.Default()
	cfg.Approximator.Seed = &seed
	return cfg
}

// =============================================================================
// anchors
// =============================================================================

func TestAnchors(t *testing.T) {
	var out bytes.Buffer
	if err := anchors(&out, 5); err != nil {
		t.Fatalf("anchors(5) failed: %v", err)
	}
	if got, want := out.String(), "0\n0.25\n0.5\n0.75\n1\n"; got != want {
		t.Errorf("anchors(5) = %q, want %q", got, want)
	}

	out.Reset()
	if err := anchors(&out, 1); err != nil {
		t.Fatalf("anchors(1) failed: %v", err)
	}
	if got := out.String(); got != "0.5\n" {
		t.Errorf("anchors(1) = %q, want %q", got, "0.5\n")
	}

	if err := anchors(&out, 0); !errors.Is(err, approximator.ErrInvalidArgument) {
		t.Errorf("anchors(0) error = %v, want ErrInvalidArgument", err)
	}
}

// =============================================================================
// Flag overrides
// =============================================================================

func TestApplyFlags_OnlyChangedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.IntVar(&flagBudget, "budget", 1000, "")
	fs.IntVar(&flagAnchors, "anchors", 10, "")
	fs.Uint64Var(&flagSeed, "seed", 0, "")
	fs.StringVar(&flagOutput, "output", "table", "")
	if err := fs.Parse([]string{"--budget=42", "--seed=7", "--output=json"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := config.Default()
	cfg.Approximator.Anchors = 3
	applyFlags(cfg, fs)

	if cfg.Approximator.Budget != 42 {
		t.Errorf("Budget = %d, want 42", cfg.Approximator.Budget)
	}
	if cfg.Approximator.Seed == nil || *cfg.Approximator.Seed != 7 {
		t.Errorf("Seed = %v, want 7", cfg.Approximator.Seed)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Output.Format)
	}
	if cfg.Approximator.Anchors != 3 {
		t.Errorf("Anchors = %d, want the unchanged 3", cfg.Approximator.Anchors)
	}
	if cfg.Game.Players != 5 {
		t.Errorf("Players = %d, want the default 5 for an undefined flag", cfg.Game.Players)
	}
}

// =============================================================================
// owen
// =============================================================================

func TestOwen_JSONWithExactComparison(t *testing.T) {
	cfg := seededConfig(42)
	cfg.Output.Format = "json"
	cfg.Output.CompareExact = true

	var out bytes.Buffer
	if err := owen(context.Background(), cfg, quietLogger(), &out, io.Discard); err != nil {
		t.Fatalf("owen failed: %v", err)
	}

	var doc struct {
		RunID     string `json:"run_id"`
		Estimates struct {
			Index            string `json:"index"`
			Estimated        bool   `json:"estimated"`
			EstimationBudget int    `json:"estimation_budget"`
			Values           []struct {
				Players []int    `json:"players"`
				Value   *float64 `json:"value"`
			} `json:"values"`
		} `json:"estimates"`
		Exact *struct {
			Estimated bool `json:"estimated"`
		} `json:"exact"`
		Intervals []*struct {
			Lower float64 `json:"lower"`
			Upper float64 `json:"upper"`
			Level float64 `json:"level"`
		} `json:"confidence_intervals"`
		MaxAbsError *float64 `json:"max_abs_error"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}

	if doc.RunID == "" {
		t.Error("run_id should be set")
	}
	if doc.Estimates.Index != "SV" || !doc.Estimates.Estimated {
		t.Errorf("estimates metadata = %+v", doc.Estimates)
	}
	if doc.Estimates.EstimationBudget > cfg.Approximator.Budget {
		t.Errorf("estimation_budget %d exceeds budget %d", doc.Estimates.EstimationBudget, cfg.Approximator.Budget)
	}
	if len(doc.Estimates.Values) != cfg.Game.Players+1 {
		t.Errorf("got %d values, want baseline plus %d players", len(doc.Estimates.Values), cfg.Game.Players)
	}
	if doc.Exact == nil || doc.Exact.Estimated {
		t.Errorf("exact block = %+v, want an exact result", doc.Exact)
	}
	if doc.MaxAbsError == nil || *doc.MaxAbsError < 0 {
		t.Errorf("max_abs_error = %v, want a non-negative value", doc.MaxAbsError)
	}
	if len(doc.Intervals) != cfg.Game.Players {
		t.Fatalf("got %d confidence intervals, want %d", len(doc.Intervals), cfg.Game.Players)
	}
	for i, ci := range doc.Intervals {
		if ci == nil {
			continue
		}
		if ci.Level != ciLevel || ci.Lower > ci.Upper {
			t.Errorf("interval %d = %+v", i, *ci)
		}
	}
}

func TestOwen_TableOutput(t *testing.T) {
	cfg := seededConfig(1)
	cfg.Output.CompareExact = true

	var out bytes.Buffer
	if err := owen(context.Background(), cfg, quietLogger(), &out, io.Discard); err != nil {
		t.Fatalf("owen failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Owen sampling SV estimates", "()", "(4,)", "exact", "abs err", "ci", "], ", "Max abs error"} {
		if !strings.Contains(text, want) {
			t.Errorf("table output missing %q:\n%s", want, text)
		}
	}
}

func TestOwen_ReproducibleWithSeed(t *testing.T) {
	run := func(workers int) string {
		cfg := seededConfig(99)
		cfg.Output.Format = "yaml"
		cfg.Approximator.Workers = workers
		var out bytes.Buffer
		if err := owen(context.Background(), cfg, quietLogger(), &out, io.Discard); err != nil {
			t.Fatalf("owen failed: %v", err)
		}
		// Drop the run ID line, which differs per run.
		_, body, _ := strings.Cut(out.String(), "\n")
		return body
	}

	if first, second := run(1), run(4); first != second {
		t.Errorf("estimates differ between 1 and 4 workers:\n%s\n---\n%s", first, second)
	}
}

func TestOwen_UnsampledPlayersWarn(t *testing.T) {
	cfg := seededConfig(3)
	cfg.Approximator.Budget = 5

	var out bytes.Buffer
	if err := owen(context.Background(), cfg, quietLogger(), &out, io.Discard); err != nil {
		t.Fatalf("owen failed: %v", err)
	}
	if !strings.Contains(out.String(), "received no samples") {
		t.Errorf("expected an unsampled warning:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "n/a") {
		t.Errorf("unsampled estimates should render as n/a:\n%s", out.String())
	}
}

func TestOwen_NegativeBudget(t *testing.T) {
	cfg := seededConfig(1)
	cfg.Approximator.Budget = -1

	err := owen(context.Background(), cfg, quietLogger(), io.Discard, io.Discard)
	if !errors.Is(err, approximator.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestOwen_ExactComparisonTooLarge(t *testing.T) {
	cfg := seededConfig(1)
	cfg.Game.Players = exact.MaxPlayers + 1
	cfg.Approximator.Budget = 100
	cfg.Output.CompareExact = true

	err := owen(context.Background(), cfg, quietLogger(), io.Discard, io.Discard)
	if !errors.Is(err, exact.ErrTooManyPlayers) {
		t.Errorf("error = %v, want ErrTooManyPlayers", err)
	}
}

func TestOwen_MetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapley.prom")
	cfg := seededConfig(5)
	cfg.Approximator.Budget = 101
	cfg.Telemetry.MetricsFile = path

	if err := owen(context.Background(), cfg, quietLogger(), io.Discard, io.Discard); err != nil {
		t.Fatalf("owen failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`aleutian_shapley_runs_total{approximator="owen_sampling_sv",status="success"} 1`,
		`aleutian_shapley_oracle_calls_total{approximator="owen_sampling_sv"} 101`,
		`aleutian_shapley_unsampled_players{approximator="owen_sampling_sv"} 0`,
		// Bridged from the approximator's own OpenTelemetry instruments.
		`owen_oracle_calls_total{`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics file missing %q:\n%s", want, text)
		}
	}
}

// =============================================================================
// exact
// =============================================================================

func TestExactValues_YAML(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Format = "yaml"

	var out bytes.Buffer
	if err := exactValues(context.Background(), cfg, quietLogger(), &out); err != nil {
		t.Fatalf("exactValues failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"estimated: false", "n_players: 5", "estimation_budget: 32"} {
		if !strings.Contains(text, want) {
			t.Errorf("yaml output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	err := writeReport(io.Discard, "xml", report{})
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("error = %v, want unknown format", err)
	}
}

// =============================================================================
// verify
// =============================================================================

type failingComponent struct{}

func (failingComponent) Name() string { return "always_fails" }

func (failingComponent) Properties() []eval.Property {
	return []eval.Property{{
		Name:        "never_holds",
		Description: "Fails on every input",
		Check: func(context.Context, any) error {
			return errors.New("broken")
		},
	}}
}

func (failingComponent) Metrics() []eval.MetricDefinition { return nil }

func (failingComponent) HealthCheck(context.Context) error { return nil }

func TestVerify(t *testing.T) {
	estimator, err := approximator.NewOwenSamplingSV(5, 3, approximator.WithSeed(11), approximator.WithLogger(quietLogger().Slog()))
	if err != nil {
		t.Fatalf("NewOwenSamplingSV failed: %v", err)
	}

	t.Run("passes for the estimator", func(t *testing.T) {
		registry := eval.NewRegistry()
		registry.MustRegister(estimator)

		var out bytes.Buffer
		if err := verify(context.Background(), registry, 3, 11, nil, quietLogger(), ux.NewPlainPrinter(&out)); err != nil {
			t.Fatalf("verify failed: %v\n%s", err, out.String())
		}
		for _, want := range []string{"owen_sampling_sv: healthy", "budget_respected", "dummy_players_exact",
			"Summary: 1 components, 4 properties checked, 0 failures (seed 11)"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("reports failing properties", func(t *testing.T) {
		registry := eval.NewRegistry()
		registry.MustRegister(failingComponent{})

		var out bytes.Buffer
		err := verify(context.Background(), registry, 1, 11, nil, quietLogger(), ux.NewPlainPrinter(&out))
		if !errors.Is(err, ErrVerificationFailed) {
			t.Fatalf("error = %v, want ErrVerificationFailed", err)
		}
		if !strings.Contains(out.String(), "never_holds") {
			t.Errorf("output should name the failing property:\n%s", out.String())
		}
		if !strings.Contains(out.String(), "1 failures") {
			t.Errorf("summary should count the failure:\n%s", out.String())
		}
	})

	t.Run("filters by tag", func(t *testing.T) {
		registry := eval.NewRegistry()
		registry.MustRegister(estimator)

		var out bytes.Buffer
		if err := verify(context.Background(), registry, 2, 11, []string{"statistical"}, quietLogger(), ux.NewPlainPrinter(&out)); err != nil {
			t.Fatalf("verify failed: %v\n%s", err, out.String())
		}
		if !strings.Contains(out.String(), "dummy_players_exact") || strings.Contains(out.String(), "budget_respected") {
			t.Errorf("tag filter not applied:\n%s", out.String())
		}
		if !strings.Contains(out.String(), "1 properties checked") {
			t.Errorf("summary should count only tagged properties:\n%s", out.String())
		}
	})
}

// rejectingSink fails every error record.
type rejectingSink struct{ telemetry.NoOpSink }

func (rejectingSink) RecordError(context.Context, *telemetry.ErrorData) error {
	return errors.New("sink unavailable")
}

func TestRecordFailure_LogsSinkError(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelWarn, Output: &buf})

	recordFailure(context.Background(), rejectingSink{}, logger, &telemetry.ErrorData{RunID: "run-1", Operation: "approximate"})

	for _, want := range []string{"failed to record telemetry", "sink unavailable", "run-1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log missing %q:\n%s", want, buf.String())
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", approximator.ErrInvalidArgument), "invalid_argument"},
		{fmt.Errorf("x: %w", approximator.ErrPlayerMismatch), "player_mismatch"},
		{fmt.Errorf("owen sampling cancelled: %w", context.Canceled), "cancelled"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("oracle down"), "oracle"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTableRows_BaselineHidesSamples(t *testing.T) {
	cfg := seededConfig(8)
	estimator, err := approximator.NewOwenSamplingSV(cfg.Game.Players, 2, approximator.WithSeed(8), approximator.WithLogger(quietLogger().Slog()))
	if err != nil {
		t.Fatalf("NewOwenSamplingSV failed: %v", err)
	}
	g, err := buildGame(cfg.Game)
	if err != nil {
		t.Fatalf("buildGame failed: %v", err)
	}
	values, err := estimator.Approximate(context.Background(), 21, g)
	if err != nil {
		t.Fatalf("Approximate failed: %v", err)
	}

	rows := tableRows(report{Estimates: values})
	if len(rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	if rows[0].Label != "()" || rows[0].Samples != -1 || !math.IsNaN(rows[0].StdErr) {
		t.Errorf("baseline row = %+v", rows[0])
	}
	for _, row := range rows[1:] {
		if row.Samples != 2 {
			t.Errorf("row %s samples = %d, want 2", row.Label, row.Samples)
		}
		if !math.IsNaN(row.Exact) {
			t.Errorf("row %s exact = %v, want NaN without comparison", row.Label, row.Exact)
		}
	}
}
