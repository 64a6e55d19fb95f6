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
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry manages the evaluable components known to a process.
//
// Description:
//
//	The Registry provides a central location for registering and looking up
//	evaluable components, and for batch operations like health checks and
//	property verification.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Evaluable
}

// NewRegistry creates a new empty registry.
//
// Example:
//
//	registry := eval.NewRegistry()
//	registry.MustRegister(owen)
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]Evaluable),
	}
}

// Register adds a component to the registry under its Name().
//
// Description:
//
//	Every metric the component declares is validated first, so a
//	registered component never exposes a malformed metric definition.
//
// Outputs:
//   - error: nil on success, ErrNilComponent if component is nil,
//     ErrInvalidMetric if a declared metric is malformed,
//     ErrAlreadyRegistered if name is already taken.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(component Evaluable) error {
	if component == nil {
		return ErrNilComponent
	}

	name := component.Name()
	for _, m := range component.Metrics() {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.components[name] = component
	return nil
}

// MustRegister registers a component and panics on error. Use during
// startup only.
func (r *Registry) MustRegister(component Evaluable) {
	if err := r.Register(component); err != nil {
		name := "<nil>"
		if component != nil {
			name = component.Name()
		}
		panic(fmt.Sprintf("eval: failed to register %v: %v", name, err))
	}
}

// Unregister removes a component from the registry.
//
// Outputs:
//   - error: nil on success, ErrNotFound if not registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.components, name)
	return nil
}

// Get retrieves a component by name.
func (r *Registry) Get(name string) (Evaluable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	component, exists := r.components[name]
	return component, exists
}

// List returns all registered component names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// HealthCheckAll runs health checks on all registered components.
//
// Description:
//
//	Runs health checks concurrently with the given concurrency limit.
//	Returns results for all components, including those that fail,
//	sorted by component name.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - concurrency: Maximum number of concurrent health checks. If <= 0, defaults to 10.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) HealthCheckAll(ctx context.Context, concurrency int) []HealthResult {
	if concurrency <= 0 {
		concurrency = 10
	}

	names := r.List()
	results := make([]HealthResult, len(names))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, name := range names {
		component, ok := r.Get(name)
		if !ok {
			results[i] = HealthResult{Component: name, Status: HealthUnknown, Message: "unregistered during check", Timestamp: time.Now()}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = HealthResult{Component: name, Status: HealthUnknown, Message: "context cancelled", Timestamp: time.Now()}
				return nil
			}

			start := time.Now()
			err := component.HealthCheck(ctx)
			result := HealthResult{
				Component: name,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
			if err != nil {
				result.Status = HealthUnhealthy
				result.Message = err.Error()
			} else {
				result.Status = HealthHealthy
				result.Message = "OK"
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// VerifyAll runs Verify on every registered component, sorted by name.
// Tags restrict the run as in Verify.
func (r *Registry) VerifyAll(ctx context.Context, iterations int, seed uint64, tags ...string) []*VerifyResult {
	names := r.List()
	results := make([]*VerifyResult, 0, len(names))
	for _, name := range names {
		component, ok := r.Get(name)
		if !ok {
			continue
		}
		results = append(results, Verify(ctx, component, iterations, seed, tags...))
	}
	return results
}
