// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a component is not found in the registry.
	ErrNotFound = errors.New("component not found")

	// ErrAlreadyRegistered is returned when attempting to register a duplicate.
	ErrAlreadyRegistered = errors.New("component already registered")

	// ErrNilComponent is returned when attempting to register nil.
	ErrNilComponent = errors.New("component must not be nil")

	// ErrInvalidProperty is returned when a property is malformed.
	ErrInvalidProperty = errors.New("invalid property definition")

	// ErrInvalidMetric is returned when a metric definition is malformed.
	ErrInvalidMetric = errors.New("invalid metric definition")

	// ErrPropertyFailed is returned when a property check fails.
	ErrPropertyFailed = errors.New("property check failed")
)

// -----------------------------------------------------------------------------
// Core Interfaces
// -----------------------------------------------------------------------------

// Evaluable is the interface that all verifiable approximators implement.
//
// Thread Safety: Implementations must be safe for concurrent use of Name,
// Properties, Metrics and HealthCheck.
type Evaluable interface {
	// Name returns a unique identifier for metrics and logging.
	// Lowercase, underscore-separated, e.g. "owen_sampling_sv".
	Name() string

	// Properties returns the correctness properties this component
	// guarantees. An empty slice indicates no properties to verify.
	Properties() []Property

	// Metrics returns the metrics this component exposes.
	Metrics() []MetricDefinition

	// HealthCheck verifies the component is functioning correctly.
	//
	// Inputs:
	//   - ctx: Context for cancellation. Must not be nil.
	//
	// Outputs:
	//   - error: nil if healthy, descriptive error otherwise.
	HealthCheck(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// Property Definition
// -----------------------------------------------------------------------------

// Property defines a correctness invariant for testing.
//
// Example:
//
//	Property{
//	    Name:        "budget_respected",
//	    Description: "Oracle calls never exceed the requested budget",
//	    Generator:   func(rng *rand.Rand) any { return rng.IntN(1000) },
//	    Check:       func(ctx context.Context, input any) error { ... },
//	}
type Property struct {
	// Name is a unique identifier for this property.
	// Should be lowercase with underscores.
	Name string

	// Description explains what this property verifies.
	Description string

	// Check runs the component on input and verifies the property holds.
	// Returns nil if the property holds, error with details otherwise.
	Check func(ctx context.Context, input any) error

	// Generator produces random valid inputs. If nil, Check is called once
	// with a nil input.
	Generator func(rng *rand.Rand) any

	// Tags categorize this property for selective testing.
	// Examples: "critical", "boundary", "statistical"
	Tags []string

	// Timeout is the maximum time for a single property check.
	// Zero means no per-check timeout.
	Timeout time.Duration
}

// Validate checks that the property is well-formed.
func (p *Property) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProperty)
	}
	if p.Description == "" {
		return fmt.Errorf("%w: description is required for %s", ErrInvalidProperty, p.Name)
	}
	if p.Check == nil {
		return fmt.Errorf("%w: check function is required for %s", ErrInvalidProperty, p.Name)
	}
	return nil
}

// HasGenerator returns true if this property has an input generator.
func (p *Property) HasGenerator() bool {
	return p.Generator != nil
}

// HasTag returns true if this property has the specified tag.
func (p *Property) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// matchesAny reports whether the property carries one of tags. An empty
// tag list matches every property.
func (p *Property) matchesAny(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	return slices.ContainsFunc(tags, p.HasTag)
}

// -----------------------------------------------------------------------------
// Metric Definition
// -----------------------------------------------------------------------------

// MetricType identifies the type of metric.
type MetricType int

const (
	// MetricCounter is a monotonically increasing value.
	MetricCounter MetricType = iota
	// MetricHistogram records observations in buckets.
	MetricHistogram
)

// String returns the string representation of a MetricType.
func (m MetricType) String() string {
	switch m {
	case MetricCounter:
		return "counter"
	case MetricHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("metric_type(%d)", m)
	}
}

// MetricDefinition describes a metric exposed by a component.
type MetricDefinition struct {
	// Name is the metric name, e.g. "owen_oracle_calls_total".
	Name string

	// Type is the metric type.
	Type MetricType

	// Description explains what this metric measures.
	Description string

	// Labels are the label names for this metric.
	Labels []string

	// Buckets are the histogram bucket boundaries (for histograms only).
	Buckets []float64
}

// Validate checks that the metric definition is well-formed.
func (m *MetricDefinition) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetric)
	}
	if m.Description == "" {
		return fmt.Errorf("%w: description is required for %s", ErrInvalidMetric, m.Name)
	}
	if m.Type == MetricHistogram && !slices.IsSorted(m.Buckets) {
		return fmt.Errorf("%w: buckets of %s must be ascending", ErrInvalidMetric, m.Name)
	}
	if m.Type == MetricHistogram && len(m.Buckets) == 0 {
		return fmt.Errorf("%w: histogram %s requires buckets", ErrInvalidMetric, m.Name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Verification Results
// -----------------------------------------------------------------------------

// VerifyResult contains the results of verifying a component's properties.
type VerifyResult struct {
	// Component is the name of the component that was verified.
	Component string

	// Properties contains results for each property.
	Properties []PropertyResult

	// Duration is the total time spent verifying.
	Duration time.Duration

	// Passed is true if all properties passed.
	Passed bool

	// Iterations is the total number of checks run.
	Iterations int
}

// FailedProperties returns the properties that failed.
func (r *VerifyResult) FailedProperties() []PropertyResult {
	var failed []PropertyResult
	for _, pr := range r.Properties {
		if !pr.Passed {
			failed = append(failed, pr)
		}
	}
	return failed
}

// PropertyResult contains the result of verifying a single property.
type PropertyResult struct {
	// Name is the property name.
	Name string

	// Passed is true if the property held for all inputs.
	Passed bool

	// Iterations is the number of checks run.
	Iterations int

	// Duration is the time spent on this property.
	Duration time.Duration

	// FailingInput is the first input that caused failure (if any).
	FailingInput any

	// Error is the error returned by the Check function (if any).
	Error error
}

// -----------------------------------------------------------------------------
// Health Check Result
// -----------------------------------------------------------------------------

// HealthStatus represents the health state of a component.
type HealthStatus int

const (
	// HealthUnknown is the zero value.
	HealthUnknown HealthStatus = iota
	// HealthHealthy indicates the component is functioning correctly.
	HealthHealthy
	// HealthUnhealthy indicates the component is not functioning.
	HealthUnhealthy
)

// String returns the string representation of a HealthStatus.
func (h HealthStatus) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("health_status(%d)", h)
	}
}

// HealthResult contains the result of a health check.
type HealthResult struct {
	// Component is the name of the component.
	Component string

	// Status is the health status.
	Status HealthStatus

	// Message provides details about the health status.
	Message string

	// Duration is the time spent on the health check.
	Duration time.Duration

	// Timestamp is when the check was performed.
	Timestamp time.Time
}
