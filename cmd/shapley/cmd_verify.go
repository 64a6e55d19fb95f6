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
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianShapley/pkg/logging"
	"github.com/AleutianAI/AleutianShapley/pkg/ux"
	"github.com/AleutianAI/AleutianShapley/services/shapley/approximator"
	"github.com/AleutianAI/AleutianShapley/services/shapley/eval"
)

// ErrVerificationFailed is returned when a property or health check fails.
var ErrVerificationFailed = errors.New("verification failed")

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	seed := rand.Uint64()
	if cfg.Approximator.Seed != nil {
		seed = *cfg.Approximator.Seed
	}
	registry := eval.NewRegistry()
	estimator, err := approximator.NewOwenSamplingSV(cfg.Game.Players, cfg.Approximator.Anchors,
		approximator.WithSeed(seed),
		approximator.WithLogger(logger.Slog()),
	)
	if err != nil {
		return err
	}
	if err := registry.Register(estimator); err != nil {
		return err
	}

	return verify(cmd.Context(), registry, verifyIterations, seed, verifyTags, logger, newPrinter(cmd.OutOrStdout()))
}

// verify health-checks and property-checks every registered component.
// With tags, only properties carrying one of them are checked.
func verify(ctx context.Context, registry *eval.Registry, iterations int, seed uint64, tags []string, logger *logging.Logger, p *ux.Printer) error {
	logger.Info("verifying components", "components", registry.List(), "iterations", iterations, "seed", seed, "tags", tags)
	failed, checked := 0, 0

	p.Title("Health")
	for _, h := range registry.HealthCheckAll(ctx, 0) {
		line := fmt.Sprintf("%s: %s (%s)", h.Component, h.Status, h.Message)
		if h.Status == eval.HealthHealthy {
			p.Success(line)
		} else {
			p.Error(line)
			failed++
		}
	}

	for _, result := range registry.VerifyAll(ctx, iterations, seed, tags...) {
		p.Title("Properties of " + result.Component)
		for _, pr := range result.Properties {
			if pr.Passed {
				p.Success(fmt.Sprintf("%s (%d checks)", pr.Name, pr.Iterations))
				continue
			}
			p.Error(fmt.Sprintf("%s: %v", pr.Name, pr.Error))
			if pr.FailingInput != nil {
				p.Info("Failing input", pr.FailingInput)
			}
		}
		failed += len(result.FailedProperties())
		checked += len(result.Properties)
	}

	p.Box("Summary", fmt.Sprintf("%d components, %d properties checked, %d failures (seed %d)",
		registry.Count(), checked, failed, seed))
	if failed > 0 {
		return fmt.Errorf("%w: %d checks failed (seed %d)", ErrVerificationFailed, failed, seed)
	}
	return nil
}
