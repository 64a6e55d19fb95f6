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
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianShapley/pkg/logging"
	"github.com/AleutianAI/AleutianShapley/services/shapley/config"
	"github.com/AleutianAI/AleutianShapley/services/shapley/exact"
)

func runExact(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	return exactValues(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// exactValues enumerates every coalition of the configured game and
// writes the exact values to out.
func exactValues(ctx context.Context, cfg *config.RunConfig, logger *logging.Logger, out io.Writer) error {
	runID := uuid.NewString()
	g, err := buildGame(cfg.Game)
	if err != nil {
		return err
	}
	logger.Debug("enumerating coalitions", "run_id", runID, "players", cfg.Game.Players)

	values, err := exact.ShapleyValues(ctx, g)
	if err != nil {
		return fmt.Errorf("exact computation failed: %w", err)
	}
	r, err := newReport(runID, values, nil)
	if err != nil {
		return err
	}
	return writeReport(out, cfg.Output.Format, r)
}
