// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
)

func TestShapleyValues_DummyGame(t *testing.T) {
	g, err := game.NewDummyGame(5, 1, 2)
	require.NoError(t, err)

	values, err := ShapleyValues(context.Background(), g)
	require.NoError(t, err)

	assert.False(t, values.Estimated)
	assert.Equal(t, "SV", values.Index)
	assert.Equal(t, 32, values.EstimationBudget)
	assert.Equal(t, int64(32), g.AccessCount())
	assert.Equal(t, 0.0, values.BaselineValue)
	assert.InDeltaSlice(t, []float64{0.2, 0.7, 0.7, 0.2, 0.2}, values.FirstOrder(), 1e-12)
}

func TestShapleyValues_Efficiency(t *testing.T) {
	// Glove game: players 0,1 hold left gloves, 2 holds a right glove.
	g, err := game.NewValueFunc(3, func(c game.Coalition) float64 {
		left := 0
		if c[0] {
			left++
		}
		if c[1] {
			left++
		}
		right := 0
		if c[2] {
			right = 1
		}
		return float64(min(left, right))
	})
	require.NoError(t, err)

	values, err := ShapleyValues(context.Background(), g)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, values.Sum(), 1e-12, "values sum to v(N) - v(∅)")
	assert.InDelta(t, 1.0/6, values.Value(0), 1e-12)
	assert.InDelta(t, 1.0/6, values.Value(1), 1e-12)
	assert.InDelta(t, 2.0/3, values.Value(2), 1e-12)
}

func TestShapleyValues_Errors(t *testing.T) {
	big, err := game.NewDummyGame(MaxPlayers + 1)
	require.NoError(t, err)
	_, err = ShapleyValues(context.Background(), big)
	assert.ErrorIs(t, err, ErrTooManyPlayers)
	assert.Equal(t, int64(0), big.AccessCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	small, err := game.NewDummyGame(3)
	require.NoError(t, err)
	_, err = ShapleyValues(ctx, small)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoalitionWeights_SumToOne(t *testing.T) {
	for n := 1; n <= 10; n++ {
		w := coalitionWeights(n)
		total := 0.0
		binom := 1.0
		for s := 0; s < n; s++ {
			total += binom * w[s]
			binom = binom * float64(n-1-s) / float64(s+1)
		}
		assert.InDelta(t, 1.0, total, 1e-12, "n=%d", n)
	}
}
