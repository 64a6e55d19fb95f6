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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/AleutianShapley/pkg/logging"
	"github.com/AleutianAI/AleutianShapley/services/shapley/config"
	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
)

// resolveConfig loads --config over the defaults, then applies every flag
// the user set explicitly, and validates the result.
func resolveConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags onto cfg. Flags a command does
// not define are ignored.
func applyFlags(cfg *config.RunConfig, flags *pflag.FlagSet) {
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("players") {
		cfg.Game.Players = flagPlayers
	}
	if changed("interaction") {
		cfg.Game.Interaction = append([]int(nil), flagInteraction...)
	}
	if changed("anchors") {
		cfg.Approximator.Anchors = flagAnchors
	}
	if changed("budget") {
		cfg.Approximator.Budget = flagBudget
	}
	if changed("seed") {
		seed := flagSeed
		cfg.Approximator.Seed = &seed
	}
	if changed("workers") {
		cfg.Approximator.Workers = flagWorkers
	}
	if changed("output") {
		cfg.Output.Format = flagOutput
	}
	if changed("compare-exact") {
		cfg.Output.CompareExact = flagCompare
	}
	if changed("telemetry") {
		cfg.Telemetry.Stdout = flagTelemetry
	}
	if changed("metrics-file") {
		cfg.Telemetry.MetricsFile = flagMetricsFile
	}
	if changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if changed("log-json") {
		cfg.Logging.JSON = flagLogJSON
	}
	if changed("log-dir") {
		cfg.Logging.Dir = flagLogDir
	}
}

// newLogger builds the process logger from the logging section. Logs go
// to stderr so they never mix with machine-readable output.
func newLogger(cfg config.LoggingConfig, cmd *cobra.Command) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "shapley",
		JSON:    cfg.JSON,
		Output:  cmd.ErrOrStderr(),
	}), nil
}

// buildGame constructs the game described by cfg.
func buildGame(cfg config.GameConfig) (*game.DummyGame, error) {
	switch cfg.Kind {
	case "dummy":
		return game.NewDummyGame(cfg.Players, cfg.Interaction...)
	default:
		return nil, fmt.Errorf("unsupported game kind %q", cfg.Kind)
	}
}
