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
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/AleutianAI/AleutianShapley/services/shapley/eval"
	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
	"github.com/AleutianAI/AleutianShapley/services/shapley/interaction"
)

// Name implements eval.Evaluable.
func (o *OwenSamplingSV) Name() string {
	return "owen_sampling_sv"
}

// Properties implements eval.Evaluable.
func (o *OwenSamplingSV) Properties() []eval.Property {
	return []eval.Property{
		{
			Name:        "anchor_points_evenly_spaced",
			Description: "Anchors span [0, 1] with equal spacing, or are [0.5] for a single anchor",
			Tags:        []string{"critical", "boundary"},
			Generator: func(rng *rand.Rand) any {
				return rng.IntN(64) + 1
			},
			Check: func(_ context.Context, input any) error {
				return checkAnchors(input.(int))
			},
		},
		{
			Name:        "budget_respected",
			Description: "Oracle calls never exceed the budget and match EstimationBudget",
			Tags:        []string{"critical"},
			Generator: func(rng *rand.Rand) any {
				return rng.IntN(4 * o.n * o.m)
			},
			Check: func(ctx context.Context, input any) error {
				budget := input.(int)
				g, values, err := o.runDummy(ctx, budget)
				if err != nil {
					return err
				}
				used := g.AccessCount()
				if used > int64(budget) {
					return fmt.Errorf("made %d oracle calls with budget %d", used, budget)
				}
				if int64(values.EstimationBudget) != used {
					return fmt.Errorf("reported %d calls, game saw %d", values.EstimationBudget, used)
				}
				return nil
			},
		},
		{
			Name:        "always_estimated",
			Description: "Results are flagged estimated with Index SV and orders 0..1",
			Generator: func(rng *rand.Rand) any {
				return rng.IntN(2 * o.n * o.m)
			},
			Check: func(ctx context.Context, input any) error {
				_, values, err := o.runDummy(ctx, input.(int))
				if err != nil {
					return err
				}
				return checkMetadata(values)
			},
		},
		{
			Name:        "dummy_players_exact",
			Description: "Players outside the interaction are estimated at exactly 1/n once sampled",
			Tags:        []string{"statistical"},
			Generator: func(rng *rand.Rand) any {
				return 1 + 2*o.n + rng.IntN(1000)
			},
			Check: func(ctx context.Context, input any) error {
				g, values, err := o.runDummy(ctx, input.(int))
				if err != nil {
					return err
				}
				interacting := g.Interaction()
				for i := 0; i < o.n; i++ {
					if slices.Contains(interacting, i) {
						continue
					}
					got := values.Value(i)
					if math.Abs(got-g.ShapleyValue(i)) > 1e-9 {
						return fmt.Errorf("player %d estimated %v, want %v", i, got, g.ShapleyValue(i))
					}
				}
				return nil
			},
		},
	}
}

// Metrics implements eval.Evaluable.
func (o *OwenSamplingSV) Metrics() []eval.MetricDefinition {
	return []eval.MetricDefinition{
		{
			Name:        "owen_approximate_duration_seconds",
			Type:        eval.MetricHistogram,
			Description: "Duration of Shapley approximation runs",
			Labels:      []string{"index", "success"},
			Buckets:     []float64{0.001, 0.01, 0.1, 1, 10},
		},
		{
			Name:        "owen_approximate_total",
			Type:        eval.MetricCounter,
			Description: "Total number of Shapley approximation runs",
			Labels:      []string{"index", "success"},
		},
		{
			Name:        "owen_oracle_calls_total",
			Type:        eval.MetricCounter,
			Description: "Total number of value-function evaluations",
			Labels:      []string{"index", "success"},
		},
		{
			Name:        "owen_unsampled_players_total",
			Type:        eval.MetricCounter,
			Description: "Players left without samples by a small budget",
			Labels:      []string{"index", "success"},
		},
	}
}

// HealthCheck implements eval.Evaluable by sampling every player once on a
// dummy game.
func (o *OwenSamplingSV) HealthCheck(ctx context.Context) error {
	_, values, err := o.runDummy(ctx, 1+2*o.n)
	if err != nil {
		return err
	}
	if len(values.Diagnostics.Unsampled) > 0 {
		return fmt.Errorf("players %v unsampled with a full-pass budget", values.Diagnostics.Unsampled)
	}
	return checkMetadata(values)
}

// runDummy approximates a dummy game whose first two players interact
// when there are at least three players.
func (o *OwenSamplingSV) runDummy(ctx context.Context, budget int) (*game.DummyGame, *interaction.Values, error) {
	var players []int
	if o.n >= 3 {
		players = []int{0, 1}
	}
	g, err := game.NewDummyGame(o.n, players...)
	if err != nil {
		return nil, nil, err
	}
	values, err := o.Approximate(ctx, budget, g)
	if err != nil {
		return nil, nil, err
	}
	return g, values, nil
}

func checkAnchors(m int) error {
	points, err := AnchorPoints(m)
	if err != nil {
		return err
	}
	if len(points) != m {
		return fmt.Errorf("got %d anchors, want %d", len(points), m)
	}
	if m == 1 {
		if points[0] != 0.5 {
			return fmt.Errorf("single anchor is %v, want 0.5", points[0])
		}
		return nil
	}
	if points[0] != 0 || points[m-1] != 1 {
		return fmt.Errorf("anchors span [%v, %v], want [0, 1]", points[0], points[m-1])
	}
	step := 1 / float64(m-1)
	for i := 1; i < m; i++ {
		if math.Abs(points[i]-points[i-1]-step) > 1e-12 {
			return fmt.Errorf("spacing %v at %d, want %v", points[i]-points[i-1], i, step)
		}
	}
	return nil
}

func checkMetadata(values *interaction.Values) error {
	switch {
	case !values.Estimated:
		return errors.New("result not flagged estimated")
	case values.Index != IndexSV:
		return fmt.Errorf("index %q, want %q", values.Index, IndexSV)
	case values.MaxOrder != 1 || values.MinOrder != 0:
		return fmt.Errorf("orders %d..%d, want 0..1", values.MinOrder, values.MaxOrder)
	}
	return nil
}

var _ eval.Evaluable = (*OwenSamplingSV)(nil)
