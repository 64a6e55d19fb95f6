// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats provides the sample statistics used to summarise
// marginal-contribution samples.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientSamples indicates not enough samples for analysis.
	ErrInsufficientSamples = errors.New("insufficient samples for statistical analysis")

	// ErrLengthMismatch indicates two vectors of different length.
	ErrLengthMismatch = errors.New("vectors have different lengths")

	// ErrInvalidLevel indicates a confidence level outside (0, 1).
	ErrInvalidLevel = errors.New("confidence level must be in (0, 1)")
)

// -----------------------------------------------------------------------------
// Accumulator
// -----------------------------------------------------------------------------

// Accumulator keeps a running mean and variance (Welford's method) without
// retaining the samples.
//
// Thread Safety: Not safe for concurrent use.
type Accumulator struct {
	count int
	mean  float64
	m2    float64
}

// Add records a sample.
func (a *Accumulator) Add(x float64) {
	a.count++
	delta := x - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (x - a.mean)
}

// Count returns the number of samples.
func (a *Accumulator) Count() int {
	return a.count
}

// Mean returns the sample mean, or NaN when empty.
func (a *Accumulator) Mean() float64 {
	if a.count == 0 {
		return math.NaN()
	}
	return a.mean
}

// Variance returns the unbiased sample variance, or NaN below two samples.
func (a *Accumulator) Variance() float64 {
	if a.count < 2 {
		return math.NaN()
	}
	return a.m2 / float64(a.count-1)
}

// StandardError returns the standard error of the mean, or NaN below two
// samples.
func (a *Accumulator) StandardError() float64 {
	if a.count < 2 {
		return math.NaN()
	}
	return math.Sqrt(a.Variance() / float64(a.count))
}

// -----------------------------------------------------------------------------
// Slice Statistics
// -----------------------------------------------------------------------------

// Mean returns the arithmetic mean of samples, or NaN when empty.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return stat.Mean(samples, nil)
}

// MaxAbsError returns max_i |a[i] - b[i]|, skipping pairs where either side
// is NaN.
func MaxAbsError(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var worst float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		worst = math.Max(worst, math.Abs(a[i]-b[i]))
	}
	return worst, nil
}

// -----------------------------------------------------------------------------
// Confidence Intervals
// -----------------------------------------------------------------------------

// ConfidenceInterval represents a statistical confidence interval.
type ConfidenceInterval struct {
	// Lower is the lower bound.
	Lower float64 `yaml:"lower" json:"lower"`

	// Upper is the upper bound.
	Upper float64 `yaml:"upper" json:"upper"`

	// Level is the confidence level (e.g., 0.95).
	Level float64 `yaml:"level" json:"level"`

	// Center is the point estimate.
	Center float64 `yaml:"center" json:"center"`
}

// Contains returns true if the interval contains the value.
func (ci *ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// Width returns the interval width.
func (ci *ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// NormalCI returns the normal-approximation interval center ± z·stdErr.
//
// Inputs:
//   - center: The point estimate. Must not be NaN.
//   - stdErr: Its standard error. NaN means too few samples.
//   - level: Confidence level in (0, 1), e.g. 0.95.
//
// Outputs:
//   - *ConfidenceInterval: The interval. Nil on error.
//   - error: ErrInsufficientSamples for a NaN center or standard error,
//     ErrInvalidLevel for a level outside (0, 1).
//
// Thread Safety: This function is stateless and safe for concurrent use.
func NormalCI(center, stdErr, level float64) (*ConfidenceInterval, error) {
	if !(level > 0 && level < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLevel, level)
	}
	if math.IsNaN(center) || math.IsNaN(stdErr) {
		return nil, ErrInsufficientSamples
	}
	margin := distuv.UnitNormal.Quantile(1-(1-level)/2) * stdErr
	return &ConfidenceInterval{
		Lower:  center - margin,
		Upper:  center + margin,
		Level:  level,
		Center: center,
	}, nil
}
