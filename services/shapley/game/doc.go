// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package game defines cooperative games as seen by the Shapley approximators.
//
// # Overview
//
// A cooperative game of n players is a value function v mapping every
// coalition S ⊆ {0, ..., n-1} to a real number. Approximators treat the game
// as a black-box oracle: every call to Value costs one unit of budget, and
// games expose an access counter so callers can verify budget compliance.
//
// # Components
//
//   - Coalition: Boolean membership vector of length n
//   - Game: The oracle interface consumed by approximators
//   - AccessCounter: Embeddable, atomic invocation counter
//   - Counted: Wraps any Game with an access counter
//   - ValueFunc: Adapts a plain function into a counted Game
//   - DummyGame: Benchmark game with a known Shapley value
//
// # Example Usage
//
//	g, err := game.NewDummyGame(5, 1, 2)
//	if err != nil {
//	    return err
//	}
//	v, err := g.Value(ctx, game.CoalitionOf(5, 0, 1, 2))
//	fmt.Println(v, g.AccessCount()) // 1.6 1
//
// # Thread Safety
//
// All games in this package are safe for concurrent use. Access counters
// are updated atomically.
package game
