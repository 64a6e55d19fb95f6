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
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
)

func newDummy(t *testing.T) *game.DummyGame {
	t.Helper()
	g, err := game.NewDummyGame(5, 1, 2)
	require.NoError(t, err)
	return g
}

func TestNewOwenSamplingSV(t *testing.T) {
	owen, err := NewOwenSamplingSV(5, 10, WithSeed(42))
	require.NoError(t, err)

	assert.Equal(t, "SV", owen.Index())
	assert.Equal(t, 1, owen.MaxOrder())
	assert.Equal(t, 0, owen.MinOrder())
	assert.False(t, owen.TopOrder())
	assert.Equal(t, 5, owen.N())
	assert.Equal(t, 10, owen.NumAnchorPoints())

	t.Run("invalid player count", func(t *testing.T) {
		_, err := NewOwenSamplingSV(0, 10)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("invalid anchor count", func(t *testing.T) {
		_, err := NewOwenSamplingSV(5, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestApproximate_DummyGame(t *testing.T) {
	for _, budget := range []int{100, 102, 1000, 10000} {
		for _, m := range []int{1, 2, 3, 10, 41} {
			t.Run(fmt.Sprintf("budget=%d/anchors=%d", budget, m), func(t *testing.T) {
				g := newDummy(t)
				owen, err := NewOwenSamplingSV(5, m, WithSeed(42))
				require.NoError(t, err)

				values, err := owen.Approximate(context.Background(), budget, g)
				require.NoError(t, err)

				assert.True(t, values.Estimated)
				assert.Equal(t, "SV", values.Index)
				assert.Equal(t, 1, values.MaxOrder)
				assert.Equal(t, 0, values.MinOrder)
				assert.LessOrEqual(t, values.EstimationBudget, budget)
				assert.LessOrEqual(t, g.AccessCount(), int64(budget))
				assert.Equal(t, g.AccessCount(), int64(values.EstimationBudget))

				for _, player := range []int{0, 3, 4} {
					assert.InDelta(t, 0.2, values.Value(player), 0.001, "player %d", player)
				}

				if budget >= 10000 && m >= 40 {
					assert.InDelta(t, 0.7, values.Value(1), 0.1)
					assert.InDelta(t, 0.7, values.Value(2), 0.1)
				}
			})
		}
	}
}

func TestApproximate_Baseline(t *testing.T) {
	g := newDummy(t)
	owen, err := NewOwenSamplingSV(5, 3, WithSeed(7))
	require.NoError(t, err)

	values, err := owen.Approximate(context.Background(), 50, g)
	require.NoError(t, err)

	baseline, ok := values.Get()
	require.True(t, ok)
	assert.Equal(t, 0.0, baseline)
	assert.Equal(t, 0.0, values.BaselineValue)
}

func TestApproximate_BudgetNeverExceeded(t *testing.T) {
	owen, err := NewOwenSamplingSV(5, 4, WithSeed(3))
	require.NoError(t, err)

	for budget := 0; budget <= 120; budget++ {
		g := newDummy(t)
		values, err := owen.Approximate(context.Background(), budget, g)
		require.NoError(t, err)
		assert.LessOrEqual(t, g.AccessCount(), int64(budget), "budget=%d", budget)
		assert.Equal(t, owen.Plan(budget).Calls, values.EstimationBudget, "budget=%d", budget)
	}
}

func TestApproximate_DegenerateBudgets(t *testing.T) {
	owen, err := NewOwenSamplingSV(5, 3, WithSeed(1))
	require.NoError(t, err)

	t.Run("zero budget makes no calls", func(t *testing.T) {
		g := newDummy(t)
		values, err := owen.Approximate(context.Background(), 0, g)
		require.NoError(t, err)

		assert.Equal(t, int64(0), g.AccessCount())
		assert.Equal(t, 0, values.EstimationBudget)
		assert.True(t, values.Estimated)
		assert.True(t, math.IsNaN(values.BaselineValue))
		for i := 0; i < 5; i++ {
			assert.True(t, math.IsNaN(values.Value(i)), "player %d", i)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, values.Diagnostics.Unsampled)
	})

	t.Run("baseline only", func(t *testing.T) {
		g := newDummy(t)
		values, err := owen.Approximate(context.Background(), 2, g)
		require.NoError(t, err)

		assert.Equal(t, int64(1), g.AccessCount())
		assert.Equal(t, 0.0, values.BaselineValue)
		assert.Len(t, values.Diagnostics.Unsampled, 5)
	})

	t.Run("partial coverage", func(t *testing.T) {
		g := newDummy(t)
		values, err := owen.Approximate(context.Background(), 5, g)
		require.NoError(t, err)

		assert.Equal(t, int64(5), g.AccessCount())
		assert.Equal(t, []int{1, 1, 0, 0, 0}, values.Diagnostics.Samples)
		assert.Equal(t, []int{2, 3, 4}, values.Diagnostics.Unsampled)
		assert.InDelta(t, 0.2, values.Value(0), 1e-9)
		assert.True(t, math.IsNaN(values.Value(4)))
	})
}

func TestApproximate_Diagnostics(t *testing.T) {
	g := newDummy(t)
	owen, err := NewOwenSamplingSV(5, 4, WithSeed(11))
	require.NoError(t, err)

	values, err := owen.Approximate(context.Background(), 1+2*5*4*10, g)
	require.NoError(t, err)

	require.NotNil(t, values.Diagnostics)
	assert.Equal(t, []int{40, 40, 40, 40, 40}, values.Diagnostics.Samples)
	assert.Empty(t, values.Diagnostics.Unsampled)
	assert.InDelta(t, 0.0, values.Diagnostics.StdErr[0], 1e-9, "constant marginals have no spread")
	assert.Greater(t, values.Diagnostics.StdErr[1], 0.0)
}

func TestApproximate_Reproducible(t *testing.T) {
	run := func(workers int) []float64 {
		owen, err := NewOwenSamplingSV(5, 10, WithSeed(99), WithWorkers(workers))
		require.NoError(t, err)
		values, err := owen.Approximate(context.Background(), 2000, newDummy(t))
		require.NoError(t, err)
		return values.FirstOrder()
	}

	sequential := run(1)
	assert.Equal(t, sequential, run(1), "same seed gives same estimates")
	assert.Equal(t, sequential, run(4), "worker count does not change estimates")

	t.Run("generator advances between calls", func(t *testing.T) {
		owen, err := NewOwenSamplingSV(5, 10, WithSeed(99))
		require.NoError(t, err)
		first, err := owen.Approximate(context.Background(), 2000, newDummy(t))
		require.NoError(t, err)
		second, err := owen.Approximate(context.Background(), 2000, newDummy(t))
		require.NoError(t, err)
		assert.NotEqual(t, first.Value(1), second.Value(1))
	})
}

func TestApproximate_ReproducibleAcrossBatches(t *testing.T) {
	budget := 1 + 2*3*drawBatch
	run := func(workers int) ([]float64, []int) {
		owen, err := NewOwenSamplingSV(5, 7, WithSeed(5), WithWorkers(workers))
		require.NoError(t, err)
		values, err := owen.Approximate(context.Background(), budget, newDummy(t))
		require.NoError(t, err)
		return values.FirstOrder(), values.Diagnostics.Samples
	}

	sequential, samples := run(1)
	parallel, _ := run(8)
	assert.Equal(t, sequential, parallel)

	alloc := plan(5, 7, budget)
	for i, got := range samples {
		assert.Equal(t, alloc.PairsFor(i), got, "player %d", i)
	}
}

// heapWatchGame records the peak heap size seen every sampleEvery calls.
type heapWatchGame struct {
	*game.DummyGame
	sampleEvery int64
	calls       atomic.Int64
	peak        atomic.Uint64
}

func (h *heapWatchGame) Value(ctx context.Context, c game.Coalition) (float64, error) {
	if h.calls.Add(1)%h.sampleEvery == 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > h.peak.Load() {
			h.peak.Store(ms.HeapAlloc)
		}
	}
	return h.DummyGame.Value(ctx, c)
}

func TestApproximate_SequentialMemoryBounded(t *testing.T) {
	if testing.Short() {
		t.Skip("large budget")
	}
	const n, m = 50, 10
	dummy, err := game.NewDummyGame(n, 1, 2)
	require.NoError(t, err)
	g := &heapWatchGame{DummyGame: dummy, sampleEvery: 50_000}

	owen, err := NewOwenSamplingSV(n, m, WithSeed(3))
	require.NoError(t, err)

	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	// 500k pairs; holding every coalition at once needs well over 50 MB.
	values, err := owen.Approximate(context.Background(), 1_000_001, g)
	require.NoError(t, err)
	assert.Equal(t, 1_000_001, values.EstimationBudget)

	growth := int64(g.peak.Load()) - int64(before.HeapAlloc)
	assert.Less(t, growth, int64(32<<20), "heap grew by %d bytes during the run", growth)
}

func TestNewOwenSamplingSV_PassSizeOverflow(t *testing.T) {
	_, err := NewOwenSamplingSV(1<<40, 1<<23)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOwenSamplingSV(math.MaxInt/4, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestApproximate_InvalidArguments(t *testing.T) {
	owen, err := NewOwenSamplingSV(5, 3, WithSeed(1))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = owen.Approximate(ctx, -1, newDummy(t))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = owen.Approximate(ctx, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	other, err := game.NewDummyGame(4)
	require.NoError(t, err)
	_, err = owen.Approximate(ctx, 10, other)
	assert.ErrorIs(t, err, ErrPlayerMismatch)
	assert.Equal(t, int64(0), other.AccessCount())
}

// failingGame returns err from its failAt-th call onward.
type failingGame struct {
	n      int
	failAt int64
	err    error
	calls  atomic.Int64
	cancel context.CancelFunc
}

func (f *failingGame) NumPlayers() int { return f.n }

func (f *failingGame) Value(_ context.Context, c game.Coalition) (float64, error) {
	call := f.calls.Add(1)
	if call >= f.failAt {
		if f.cancel != nil {
			f.cancel()
			return float64(c.Size()), nil
		}
		return 0, f.err
	}
	return float64(c.Size()), nil
}

func TestApproximate_OracleErrorPropagates(t *testing.T) {
	errOracle := errors.New("model unavailable")

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			owen, err := NewOwenSamplingSV(3, 2, WithSeed(5), WithWorkers(workers))
			require.NoError(t, err)

			g := &failingGame{n: 3, failAt: 4, err: errOracle}
			values, err := owen.Approximate(context.Background(), 100, g)
			assert.Nil(t, values)
			assert.ErrorIs(t, err, errOracle)
		})
	}
}

func TestApproximate_Cancellation(t *testing.T) {
	owen, err := NewOwenSamplingSV(3, 2, WithSeed(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := &failingGame{n: 3, failAt: 3, cancel: cancel}
	values, err := owen.Approximate(ctx, 100, g)
	assert.Nil(t, values)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), g.calls.Load())
}

func TestApproximate_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	owen, err := NewOwenSamplingSV(5, 2, WithSeed(1))
	require.NoError(t, err)
	_, err = owen.Approximate(context.Background(), 41, newDummy(t))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.Equal(t, "owen.approximate", span.Name())

	attrs := make(map[string]int64)
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	assert.Equal(t, int64(41), attrs["shapley.budget"])
	assert.Equal(t, int64(2), attrs["shapley.passes"])
	assert.Equal(t, int64(41), attrs["shapley.calls_used"])
}
