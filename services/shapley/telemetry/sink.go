// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil telemetry data is passed.
	ErrNilData = errors.New("telemetry data must not be nil")

	// ErrSinkClosed is returned when recording to a closed sink.
	ErrSinkClosed = errors.New("sink is closed")

	// ErrNoSinks is returned when a composite sink has no children.
	ErrNoSinks = errors.New("at least one sink is required")
)

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

// ApproximationData describes one completed approximation run.
type ApproximationData struct {
	// RunID correlates the run across logs and telemetry.
	RunID string

	// Approximator is the estimator name, e.g. "owen_sampling_sv".
	Approximator string

	// Players is the game's player count.
	Players int

	// Anchors is the anchor point count.
	Anchors int

	// Budget is the requested oracle-call ceiling.
	Budget int

	// Used is the number of oracle calls actually made.
	Used int

	// Unsampled is the number of players left without samples.
	Unsampled int

	// Duration is the wall time of the run.
	Duration time.Duration

	// Labels are extra attributes attached to every export.
	Labels map[string]string

	// Timestamp is when the run started.
	Timestamp time.Time
}

// Utilization returns Used/Budget, or 0 for a zero budget.
func (d *ApproximationData) Utilization() float64 {
	if d.Budget <= 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Budget)
}

// ErrorData describes a failed run.
type ErrorData struct {
	// RunID correlates the run across logs and telemetry.
	RunID string

	// Component is the failing component, e.g. "owen_sampling_sv".
	Component string

	// Operation is the failing operation, e.g. "approximate".
	Operation string

	// ErrorType classifies the error, e.g. "invalid_argument".
	ErrorType string

	// Message is the error text.
	Message string

	// Labels are extra attributes attached to every export.
	Labels map[string]string

	// Timestamp is when the error occurred.
	Timestamp time.Time
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

// Sink receives run telemetry.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sink interface {
	// RecordApproximation records a completed run.
	RecordApproximation(ctx context.Context, data *ApproximationData) error

	// RecordError records a failed run.
	RecordError(ctx context.Context, data *ErrorData) error

	// Flush forces export of buffered telemetry.
	Flush(ctx context.Context) error

	// Close releases resources. Idempotent.
	Close() error
}

// NoOpSink discards all telemetry.
type NoOpSink struct{}

// RecordApproximation validates its inputs and discards them.
func (NoOpSink) RecordApproximation(ctx context.Context, data *ApproximationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return nil
}

// RecordError validates its inputs and discards them.
func (NoOpSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return nil
}

// Flush does nothing.
func (NoOpSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// Close does nothing.
func (NoOpSink) Close() error { return nil }

// -----------------------------------------------------------------------------
// Composite Sink
// -----------------------------------------------------------------------------

// CompositeSink forwards telemetry to every child sink.
//
// Description:
//
//	Every child receives every record even when an earlier child fails.
//	Child errors are joined with errors.Join.
//
// Thread Safety: Safe for concurrent use.
type CompositeSink struct {
	sinks []Sink

	mu     sync.RWMutex
	closed bool
}

// NewCompositeSink creates a composite of the non-nil sinks.
//
// Outputs:
//   - *CompositeSink: The composite. Nil on error.
//   - error: ErrNoSinks when no non-nil sink is given.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNoSinks
	}
	return &CompositeSink{sinks: filtered}, nil
}

// RecordApproximation forwards to every child.
func (c *CompositeSink) RecordApproximation(ctx context.Context, data *ApproximationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return c.each(func(s Sink) error { return s.RecordApproximation(ctx, data) })
}

// RecordError forwards to every child.
func (c *CompositeSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return c.each(func(s Sink) error { return s.RecordError(ctx, data) })
}

// Flush flushes every child.
func (c *CompositeSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return c.each(func(s Sink) error { return s.Flush(ctx) })
}

// Close closes every child. Idempotent.
func (c *CompositeSink) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeSink) each(fn func(Sink) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSinkClosed
	}

	var errs []error
	for _, s := range c.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Verify interface compliance at compile time.
var (
	_ Sink = NoOpSink{}
	_ Sink = (*CompositeSink)(nil)
	_ Sink = (*OTelSink)(nil)
	_ Sink = (*PrometheusSink)(nil)
)
