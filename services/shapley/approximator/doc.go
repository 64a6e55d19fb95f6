// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package approximator estimates Shapley values of cooperative games under a
// fixed budget of value-function calls.
//
// # Owen Sampling
//
// The Shapley value of player i can be written as an integral over a
// participation probability q in [0, 1]:
//
//	phi_i = ∫ E[v(S ∪ {i}) - v(S)] dq
//
// where S contains every other player independently with probability q.
// OwenSamplingSV replaces the integral with a fixed grid of anchor points
// and estimates each inner expectation by Monte-Carlo sampling of
// coalitions. Each sample costs two oracle calls.
//
// # Budget
//
// The budget is a hard ceiling on oracle calls. One call evaluates the
// empty coalition for the baseline. The remainder is spread over complete
// passes of every (anchor, player) pair, with any leftover taken from the
// front of one more pass:
//
//	owen, _ := approximator.NewOwenSamplingSV(5, 10, approximator.WithSeed(42))
//	values, err := owen.Approximate(ctx, 1000, g)
//
// # Reproducibility
//
// All coalitions are drawn before any oracle call. The same seed gives the
// same estimates whether calls are evaluated sequentially or through
// WithWorkers.
package approximator
