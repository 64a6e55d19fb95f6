// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exact computes Shapley values by enumerating every coalition.
//
// It is the reference the sampling estimators are checked against and is
// only practical for small games.
package exact

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
	"github.com/AleutianAI/AleutianShapley/services/shapley/interaction"
)

// MaxPlayers is the largest game ShapleyValues will enumerate.
const MaxPlayers = 20

// ErrTooManyPlayers is returned for games with more than MaxPlayers players.
var ErrTooManyPlayers = errors.New("too many players for exact enumeration")

// ShapleyValues returns the exact Shapley value of every player of g.
//
// Description:
//
//	Evaluates all 2^n coalitions once, then combines marginal
//	contributions with weight |S|!(n-|S|-1)!/n!.
//
// Inputs:
//   - ctx: Context for cancellation. Checked between evaluations.
//   - g: The game. Must have between 1 and MaxPlayers players.
//
// Outputs:
//   - *interaction.Values: Index "SV", orders 0..1, Estimated false,
//     EstimationBudget 2^n.
//   - error: ErrTooManyPlayers, game.ErrInvalidPlayerCount, or a wrapped
//     oracle or context error.
func ShapleyValues(ctx context.Context, g game.Game) (*interaction.Values, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil game", game.ErrInvalidPlayerCount)
	}
	n := g.NumPlayers()
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", game.ErrInvalidPlayerCount, n)
	}
	if n > MaxPlayers {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPlayers, n, MaxPlayers)
	}

	size := 1 << n
	worth := make([]float64, size)
	for mask := 0; mask < size; mask++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("exact enumeration cancelled: %w", err)
		}
		c := fromMask(n, mask)
		v, err := g.Value(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("evaluating coalition %s: %w", c, err)
		}
		worth[mask] = v
	}

	weights := coalitionWeights(n)
	phi := make([]float64, n)
	for mask := 0; mask < size; mask++ {
		s := bits.OnesCount(uint(mask))
		for i := 0; i < n; i++ {
			bit := 1 << i
			if mask&bit != 0 {
				continue
			}
			phi[i] += weights[s] * (worth[mask|bit] - worth[mask])
		}
	}

	values := interaction.New("SV", n, 0, 1)
	values.EstimationBudget = size
	values.BaselineValue = worth[0]
	values.Set(worth[0])
	for i, v := range phi {
		values.Set(v, i)
	}
	return values, nil
}

// coalitionWeights returns w[s] = s!(n-s-1)!/n! for s in [0, n).
func coalitionWeights(n int) []float64 {
	w := make([]float64, n)
	// w[0] = 1/n, w[s+1] = w[s] * (s+1)/(n-s-1)
	w[0] = 1 / float64(n)
	for s := 0; s+1 < n; s++ {
		w[s+1] = w[s] * float64(s+1) / float64(n-s-1)
	}
	return w
}

func fromMask(n, mask int) game.Coalition {
	c := game.NewCoalition(n)
	for i := range c {
		c[i] = mask&(1<<i) != 0
	}
	return c
}
