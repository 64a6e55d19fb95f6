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
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "shapley",
		Short: "Estimate Shapley values by Owen sampling",
		Long: `shapley approximates the Shapley values of a cooperative game under a
fixed budget of value-function evaluations, using Owen's multilinear
extension sampled on evenly spaced anchor points.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	anchorsCmd = &cobra.Command{
		Use:   "anchors <m>",
		Short: "Print the m evenly spaced inclusion probabilities",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnchors,
	}

	owenCmd = &cobra.Command{
		Use:   "owen",
		Short: "Approximate Shapley values of the configured game",
		Long: `Runs the Owen sampling estimator on the configured game. Flags override
values from --config, which override the built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: runOwen,
	}

	exactCmd = &cobra.Command{
		Use:   "exact",
		Short: "Compute exact Shapley values by full enumeration",
		Args:  cobra.NoArgs,
		RunE:  runExact,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check the estimator's correctness properties and health",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	}
)

// Flag values shared by the game-running commands.
var (
	configPath      string
	flagPlayers     int
	flagAnchors     int
	flagBudget      int
	flagSeed        uint64
	flagWorkers     int
	flagInteraction []int
	flagOutput      string
	flagCompare     bool
	flagTelemetry   bool
	flagMetricsFile string
	flagLogLevel    string
	flagLogJSON     bool
	flagLogDir      string
	flagNoColor     bool

	verifyIterations int
	verifyTags       []string
)

func init() {
	rootCmd.AddCommand(anchorsCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML run configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Write console logs as JSON")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "Also write JSON logs to this directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable styled terminal output")

	// --- Estimation ---
	rootCmd.AddCommand(owenCmd)
	owenCmd.Flags().IntVarP(&flagPlayers, "players", "n", 5, "Number of players in the dummy game")
	owenCmd.Flags().IntSliceVar(&flagInteraction, "interaction", []int{1, 2}, "Players that earn the interaction bonus together")
	owenCmd.Flags().IntVarP(&flagAnchors, "anchors", "m", 10, "Number of anchor points")
	owenCmd.Flags().IntVarP(&flagBudget, "budget", "b", 1000, "Maximum number of value-function evaluations")
	owenCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "Seed for reproducible sampling (random when unset)")
	owenCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 1, "Concurrent value-function evaluations")
	owenCmd.Flags().StringVarP(&flagOutput, "output", "o", "table", "Output format (table, yaml, json)")
	owenCmd.Flags().BoolVar(&flagCompare, "compare-exact", false, "Also compute exact values and report the error")
	owenCmd.Flags().BoolVar(&flagTelemetry, "telemetry", false, "Export spans and metrics to stderr")
	owenCmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	rootCmd.AddCommand(exactCmd)
	exactCmd.Flags().IntVarP(&flagPlayers, "players", "n", 5, "Number of players in the dummy game")
	exactCmd.Flags().IntSliceVar(&flagInteraction, "interaction", []int{1, 2}, "Players that earn the interaction bonus together")
	exactCmd.Flags().StringVarP(&flagOutput, "output", "o", "table", "Output format (table, yaml, json)")

	// --- Verification ---
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().IntVarP(&flagPlayers, "players", "n", 5, "Number of players for generated games")
	verifyCmd.Flags().IntVarP(&flagAnchors, "anchors", "m", 10, "Number of anchor points")
	verifyCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "Seed for estimator and property inputs (random when unset)")
	verifyCmd.Flags().IntVar(&verifyIterations, "iterations", 10, "Generated inputs per property")
	verifyCmd.Flags().StringSliceVar(&verifyTags, "tag", nil, "Only check properties with one of these tags (e.g. critical)")
}
