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
	"math/rand/v2"
	"time"
)

// Verify checks every property of component.
//
// Description:
//
//	For each property with a generator, draws `iterations` inputs from a
//	PCG stream seeded with seed and runs Check on each, stopping at the
//	first failure. Properties without a generator are checked once with a
//	nil input. Malformed properties are reported as failures. When tags
//	are given, properties carrying none of them are skipped.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - component: The component to verify. Must not be nil.
//   - iterations: Inputs per generated property. Values < 1 mean 1.
//   - seed: Seed for input generation, making runs reproducible.
//   - tags: Optional tag filter, e.g. "critical".
//
// Outputs:
//   - *VerifyResult: Per-property results. Never nil.
//
// Thread Safety: Safe for concurrent use if the component's checks are.
func Verify(ctx context.Context, component Evaluable, iterations int, seed uint64, tags ...string) *VerifyResult {
	if iterations < 1 {
		iterations = 1
	}
	start := time.Now()
	result := &VerifyResult{
		Component: component.Name(),
		Passed:    true,
	}

	for _, prop := range component.Properties() {
		if !prop.matchesAny(tags) {
			continue
		}
		pr := verifyProperty(ctx, prop, iterations, seed)
		result.Iterations += pr.Iterations
		if !pr.Passed {
			result.Passed = false
		}
		result.Properties = append(result.Properties, pr)
	}

	result.Duration = time.Since(start)
	return result
}

func verifyProperty(ctx context.Context, prop Property, iterations int, seed uint64) PropertyResult {
	start := time.Now()
	pr := PropertyResult{Name: prop.Name, Passed: true}
	if err := prop.Validate(); err != nil {
		pr.Passed = false
		pr.Error = err
		pr.Duration = time.Since(start)
		return pr
	}

	if !prop.HasGenerator() {
		iterations = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			pr.Passed = false
			pr.Error = err
			break
		}

		var input any
		if prop.HasGenerator() {
			input = prop.Generator(rng)
		}

		pr.Iterations++
		if err := runCheck(ctx, prop, input); err != nil {
			pr.Passed = false
			pr.FailingInput = input
			pr.Error = fmt.Errorf("%w: %s: %w", ErrPropertyFailed, prop.Name, err)
			break
		}
	}

	pr.Duration = time.Since(start)
	return pr
}

func runCheck(ctx context.Context, prop Property, input any) error {
	if prop.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, prop.Timeout)
		defer cancel()
	}
	return prop.Check(ctx, input)
}
