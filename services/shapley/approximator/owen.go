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
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianShapley/services/shapley/game"
	"github.com/AleutianAI/AleutianShapley/services/shapley/interaction"
	"github.com/AleutianAI/AleutianShapley/services/shapley/stats"
)

// IndexSV is the interaction index label of Shapley value results.
const IndexSV = "SV"

// pcgStream is the second PCG word derived from the seed.
const pcgStream = 0x9e3779b97f4a7c15

// drawBatch is the number of pairs drawn and evaluated together. Memory
// per run is bounded by drawBatch coalitions regardless of the budget.
const drawBatch = 1024

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures an OwenSamplingSV.
type Option func(*options)

type options struct {
	seed    uint64
	seeded  bool
	workers int
	logger  *slog.Logger
}

// WithSeed fixes the random stream so runs are reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithWorkers evaluates oracle calls on up to k goroutines. Values below 1
// mean sequential evaluation. Estimates do not depend on k.
func WithWorkers(k int) Option {
	return func(o *options) {
		o.workers = k
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// -----------------------------------------------------------------------------
// OwenSamplingSV
// -----------------------------------------------------------------------------

// OwenSamplingSV estimates first-order Shapley values by Owen sampling.
//
// Description:
//
//	The estimator is bound to a player count and an anchor count at
//	construction. It owns a PCG generator that is seeded once and
//	advanced by every Approximate call, so two calls on the same
//	instance draw different coalitions.
//
// Thread Safety: Safe for concurrent use. Each batch of draws is serialized
// on the generator, so concurrent runs on one instance interleave batches
// and are reproducible only when run one at a time.
type OwenSamplingSV struct {
	n       int
	m       int
	anchors []float64
	workers int
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOwenSamplingSV creates an Owen sampling estimator.
//
// Inputs:
//   - n: Number of players. Must be positive.
//   - m: Number of anchor points. Must be positive, with 4·n·m within int.
//   - opts: Optional seed, worker count and logger.
//
// Outputs:
//   - *OwenSamplingSV: The estimator. Nil on error.
//   - error: ErrInvalidArgument for a non-positive n or m, or when 4·n·m
//     overflows int.
func NewOwenSamplingSV(n, m int, opts ...Option) (*OwenSamplingSV, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: player count must be positive, got %d", ErrInvalidArgument, n)
	}
	if m > 0 && n > math.MaxInt/4/m {
		return nil, fmt.Errorf("%w: %d players x %d anchors overflows the pass size", ErrInvalidArgument, n, m)
	}
	anchors, err := AnchorPoints(m)
	if err != nil {
		return nil, err
	}

	cfg := options{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.seeded {
		cfg.seed = rand.Uint64()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}

	return &OwenSamplingSV{
		n:       n,
		m:       m,
		anchors: anchors,
		workers: cfg.workers,
		logger:  cfg.logger.With(slog.String("approximator", "owen_sampling_sv")),
		rng:     rand.New(rand.NewPCG(cfg.seed, cfg.seed^pcgStream)),
	}, nil
}

// Index returns "SV".
func (o *OwenSamplingSV) Index() string { return IndexSV }

// MaxOrder returns 1; only single-player values are estimated.
func (o *OwenSamplingSV) MaxOrder() int { return 1 }

// MinOrder returns 0; the empty-coalition baseline is included.
func (o *OwenSamplingSV) MinOrder() int { return 0 }

// TopOrder returns false.
func (o *OwenSamplingSV) TopOrder() bool { return false }

// N returns the player count.
func (o *OwenSamplingSV) N() int { return o.n }

// NumAnchorPoints returns the anchor count.
func (o *OwenSamplingSV) NumAnchorPoints() int { return o.m }

// AnchorPoints returns m evenly spaced anchors. See the package-level
// AnchorPoints.
func (o *OwenSamplingSV) AnchorPoints(m int) ([]float64, error) {
	return AnchorPoints(m)
}

// sample is one planned marginal-contribution measurement.
type sample struct {
	anchor    int
	player    int
	coalition game.Coalition
	marginal  float64
}

// Approximate estimates the Shapley value of every player of g.
//
// Description:
//
//	Evaluates the empty coalition once for the baseline, then spends the
//	rest of the budget on (anchor, player) pairs as described by Plan.
//	For each pair a coalition of the other players is drawn with
//	inclusion probability equal to the anchor, and v(S ∪ {i}) - v(S) is
//	recorded. A player's estimate is the mean over anchors of the
//	per-anchor sample means, using only anchors that received samples.
//
//	Players that receive no samples are reported as NaN and listed in
//	the result's Diagnostics. A budget of zero makes no oracle calls.
//
// Inputs:
//   - ctx: Context for cancellation. Checked between evaluations.
//   - budget: Maximum number of oracle calls. Must be >= 0.
//   - g: The game. Must have exactly N() players.
//
// Outputs:
//   - *interaction.Values: Estimates with Index "SV", orders 0..1,
//     Estimated true and EstimationBudget set to the calls made.
//   - error: ErrInvalidArgument, ErrPlayerMismatch, a wrapped oracle
//     error, or a wrapped context error.
//
// Thread Safety: Safe for concurrent use.
func (o *OwenSamplingSV) Approximate(ctx context.Context, budget int, g game.Game) (_ *interaction.Values, err error) {
	if budget < 0 {
		return nil, fmt.Errorf("%w: budget must be non-negative, got %d", ErrInvalidArgument, budget)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: game must not be nil", ErrInvalidArgument)
	}
	if got := g.NumPlayers(); got != o.n {
		return nil, fmt.Errorf("%w: game has %d players, approximator has %d", ErrPlayerMismatch, got, o.n)
	}

	start := time.Now()
	ctx, span := startApproximateSpan(ctx, o.n, o.m, budget)
	defer span.End()

	var calls atomic.Int64
	unsampled := 0
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		recordApproximateMetrics(ctx, IndexSV, time.Since(start), int(calls.Load()), unsampled, err == nil)
	}()

	alloc := o.Plan(budget)
	o.logger.Debug("owen sampling plan",
		slog.Int("players", o.n),
		slog.Int("anchors", o.m),
		slog.Int("budget", budget),
		slog.Int("passes", alloc.Passes),
		slog.Int("remainder_pairs", alloc.RemainderPairs),
		slog.Int("calls", alloc.Calls),
	)

	values := interaction.New(IndexSV, o.n, o.MinOrder(), o.MaxOrder())
	values.Estimated = true

	if budget >= 1 {
		baseline, err := o.call(ctx, g, game.NewCoalition(o.n), &calls)
		if err != nil {
			return nil, err
		}
		values.BaselineValue = baseline
	}
	values.Set(values.BaselineValue)

	strata := make([][]stats.Accumulator, o.n)
	for i := range strata {
		strata[i] = make([]stats.Accumulator, o.m)
	}
	pairs := alloc.Pairs()
	for start := 0; start < pairs; start += drawBatch {
		batch := o.draw(alloc, start, min(start+drawBatch, pairs))
		if err := o.evaluate(ctx, g, batch, &calls); err != nil {
			return nil, err
		}
		for _, s := range batch {
			strata[s.player][s.anchor].Add(s.marginal)
		}
	}

	diag := o.estimate(values, strata)
	values.Diagnostics = diag
	values.EstimationBudget = int(calls.Load())
	unsampled = len(diag.Unsampled)

	if unsampled > 0 {
		o.logger.Warn("budget too small to sample every player",
			slog.Int("budget", budget),
			slog.Int("players", o.n),
			slog.Any("unsampled", diag.Unsampled),
		)
	}
	setApproximateSpanResult(span, alloc, values.EstimationBudget, unsampled)
	return values, nil
}

// draw draws the coalitions of plan positions [start, end) in order.
func (o *OwenSamplingSV) draw(alloc Allocation, start, end int) []sample {
	samples := make([]sample, end-start)

	o.mu.Lock()
	defer o.mu.Unlock()

	for k := range samples {
		anchor, player := alloc.pair(start + k)
		q := o.anchors[anchor]
		coalition := game.NewCoalition(o.n)
		for j := range coalition {
			if j == player {
				continue
			}
			coalition[j] = o.rng.Float64() < q
		}
		samples[k] = sample{anchor: anchor, player: player, coalition: coalition}
	}
	return samples
}

// evaluate fills in the marginal of every sample.
func (o *OwenSamplingSV) evaluate(ctx context.Context, g game.Game, samples []sample, calls *atomic.Int64) error {
	if o.workers <= 1 || len(samples) < 2 {
		for i := range samples {
			if err := o.measure(ctx, g, &samples[i], calls); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.workers)
	for i := range samples {
		eg.Go(func() error {
			return o.measure(egCtx, g, &samples[i], calls)
		})
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fmt.Errorf("owen sampling cancelled: %w", ctxErr)
		}
		return err
	}
	return nil
}

// measure evaluates v(S ∪ {i}) - v(S) for one sample.
func (o *OwenSamplingSV) measure(ctx context.Context, g game.Game, s *sample, calls *atomic.Int64) error {
	with, err := o.call(ctx, g, s.coalition.With(s.player), calls)
	if err != nil {
		return err
	}
	without, err := o.call(ctx, g, s.coalition, calls)
	if err != nil {
		return err
	}
	s.marginal = with - without
	return nil
}

func (o *OwenSamplingSV) call(ctx context.Context, g game.Game, c game.Coalition, calls *atomic.Int64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("owen sampling cancelled: %w", err)
	}
	value, err := g.Value(ctx, c)
	calls.Add(1)
	if err != nil {
		return 0, fmt.Errorf("evaluating coalition %s: %w", c, err)
	}
	return value, nil
}

// estimate writes stratum-weighted means into values and returns the
// per-player diagnostics.
func (o *OwenSamplingSV) estimate(values *interaction.Values, strata [][]stats.Accumulator) *interaction.Diagnostics {
	diag := &interaction.Diagnostics{
		Samples: make([]int, o.n),
		StdErr:  make([]float64, o.n),
	}
	for i := range strata {
		estimate, stdErr, count := stratified(strata[i])
		diag.Samples[i] = count
		diag.StdErr[i] = stdErr
		if count == 0 {
			diag.Unsampled = append(diag.Unsampled, i)
		}
		values.Set(estimate, i)
	}
	return diag
}

// stratified returns the mean of the non-empty stratum means, its standard
// error and the total sample count. The standard error is NaN when any
// non-empty stratum has a single sample.
func stratified(strata []stats.Accumulator) (mean, stdErr float64, count int) {
	means := make([]float64, 0, len(strata))
	var varSum float64
	exactSE := true
	for i := range strata {
		acc := &strata[i]
		if acc.Count() == 0 {
			continue
		}
		count += acc.Count()
		means = append(means, acc.Mean())
		if acc.Count() < 2 {
			exactSE = false
			continue
		}
		varSum += acc.Variance() / float64(acc.Count())
	}
	if len(means) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	mean = stats.Mean(means)
	stdErr = math.NaN()
	if exactSE {
		stdErr = math.Sqrt(varSum) / float64(len(means))
	}
	return mean, stdErr, count
}
