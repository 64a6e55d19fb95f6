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

// Allocation describes how a budget is spent across (anchor, player) pairs.
//
// A pass visits every pair once in anchor-major order, taking the anchors
// in bit-reversed order so any prefix of a pass spreads over [0, 1].
// Passes complete passes run, then RemainderPairs pairs from the front of
// one more pass.
type Allocation struct {
	// Players is the player count n.
	Players int

	// Anchors is the anchor count m.
	Anchors int

	// Passes is the number of complete passes.
	Passes int

	// RemainderPairs is the number of pairs from the partial pass.
	RemainderPairs int

	// Calls is the total number of oracle calls, baseline included.
	Calls int

	order []int
}

// Plan computes the allocation for budget.
//
// Description:
//
//	One call is reserved for the baseline. Each pair costs two calls. A
//	budget below one plans nothing; an odd leftover call is unused.
//
// Thread Safety: Safe for concurrent use.
func (o *OwenSamplingSV) Plan(budget int) Allocation {
	return plan(o.n, o.m, budget)
}

func plan(n, m, budget int) Allocation {
	a := Allocation{Players: n, Anchors: m, order: anchorOrder(m)}
	if budget < 1 {
		return a
	}
	spendable := budget - 1
	perPass := 2 * n * m
	a.Passes = spendable / perPass
	a.RemainderPairs = (spendable % perPass) / 2
	a.Calls = 1 + 2*a.Pairs()
	return a
}

// Pairs returns the total number of sampled pairs.
func (a Allocation) Pairs() int {
	return a.Passes*a.Players*a.Anchors + a.RemainderPairs
}

// PairsFor returns the number of samples player receives.
func (a Allocation) PairsFor(player int) int {
	if player < 0 || player >= a.Players {
		return 0
	}
	count := a.Passes * a.Anchors
	// Partial-pass position p belongs to player p % n.
	full := a.RemainderPairs / a.Players
	count += full
	if player < a.RemainderPairs%a.Players {
		count++
	}
	return count
}

// pair returns the (anchor index, player) of position p in plan order.
func (a Allocation) pair(p int) (anchor, player int) {
	return a.order[(p/a.Players)%a.Anchors], p % a.Players
}

// anchorOrder lists 0..m-1 in bit-reversed (van der Corput) order, e.g.
// 0, 4, 2, 1, 3 for m = 5.
func anchorOrder(m int) []int {
	bits := 0
	for 1<<bits < m {
		bits++
	}
	order := make([]int, 0, m)
	for i := 0; i < 1<<bits; i++ {
		if r := reverseBits(i, bits); r < m {
			order = append(order, r)
		}
	}
	return order
}

func reverseBits(x, bits int) int {
	r := 0
	for range bits {
		r = r<<1 | x&1
		x >>= 1
	}
	return r
}
