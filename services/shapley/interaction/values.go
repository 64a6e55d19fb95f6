// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interaction holds the estimate collections returned by the
// Shapley approximators.
//
// A Values collection maps tuples of player indices to real estimates. For
// the Shapley value every tuple has order one, plus the empty tuple that
// carries the baseline v(∅) when the minimum order is zero.
package interaction

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Values is an estimate collection keyed by player-index tuples.
//
// Description:
//
//	Tuples are normalised to ascending order, so (3, 1) and (1, 3) address
//	the same entry. Missing entries read as NaN through Value.
//
// Thread Safety: Not safe for concurrent mutation. Read-only use after the
// approximator returns is safe.
type Values struct {
	// Index is the interaction index label, e.g. "SV".
	Index string

	// MaxOrder is the largest tuple order considered.
	MaxOrder int

	// MinOrder is the smallest tuple order considered. Zero means the
	// empty-tuple baseline is included.
	MinOrder int

	// NPlayers is the player count of the game.
	NPlayers int

	// EstimationBudget is the number of oracle calls actually made.
	EstimationBudget int

	// Estimated is true when the values come from sampling rather than
	// exact enumeration.
	Estimated bool

	// BaselineValue is v(∅). NaN when it was never evaluated.
	BaselineValue float64

	// Diagnostics carries per-player sampling information. Nil for exact
	// results.
	Diagnostics *Diagnostics

	entries map[string]entry
}

type entry struct {
	tuple []int
	value float64
}

// Diagnostics describes how the sampling budget landed on each player.
type Diagnostics struct {
	// Samples is the number of marginal-contribution samples per player.
	Samples []int

	// StdErr is the standard error of each player's estimate. NaN when
	// fewer than two samples exist.
	StdErr []float64

	// Unsampled lists players that received no samples at all.
	Unsampled []int
}

// New creates an empty collection with the given metadata.
func New(index string, nPlayers, minOrder, maxOrder int) *Values {
	return &Values{
		Index:         index,
		MaxOrder:      maxOrder,
		MinOrder:      minOrder,
		NPlayers:      nPlayers,
		BaselineValue: math.NaN(),
		entries:       make(map[string]entry),
	}
}

// Set stores value under the tuple formed by players.
func (v *Values) Set(value float64, players ...int) {
	if v.entries == nil {
		v.entries = make(map[string]entry)
	}
	tuple := normalise(players)
	v.entries[key(tuple)] = entry{tuple: tuple, value: value}
}

// Get returns the value stored for the tuple and whether it exists.
func (v *Values) Get(players ...int) (float64, bool) {
	e, ok := v.entries[key(normalise(players))]
	if !ok {
		return math.NaN(), false
	}
	return e.value, true
}

// Value returns the value stored for the tuple, or NaN if absent.
func (v *Values) Value(players ...int) float64 {
	value, _ := v.Get(players...)
	return value
}

// Len returns the number of stored tuples.
func (v *Values) Len() int {
	return len(v.entries)
}

// Tuples returns every stored tuple ordered by size, then lexicographically.
func (v *Values) Tuples() [][]int {
	tuples := make([][]int, 0, len(v.entries))
	for _, e := range v.entries {
		tuples = append(tuples, cloneInts(e.tuple))
	}
	slices.SortFunc(tuples, compareTuples)
	return tuples
}

// FirstOrder returns the order-one estimates as a vector of length NPlayers.
// Players without an entry read as NaN.
func (v *Values) FirstOrder() []float64 {
	out := make([]float64, v.NPlayers)
	for i := range out {
		out[i] = v.Value(i)
	}
	return out
}

// Sum returns the sum of all order-one estimates, skipping NaN entries.
func (v *Values) Sum() float64 {
	total := 0.0
	for _, value := range v.FirstOrder() {
		if !math.IsNaN(value) {
			total += value
		}
	}
	return total
}

// TupleString renders a tuple as "(1, 2)"; the empty tuple is "()".
func TupleString(tuple []int) string {
	parts := make([]string, len(tuple))
	for i, p := range tuple {
		parts[i] = strconv.Itoa(p)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func normalise(players []int) []int {
	tuple := cloneInts(players)
	slices.Sort(tuple)
	return tuple
}

// cloneInts copies s into a non-nil slice so the empty tuple compares equal
// to []int{}.
func cloneInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func key(tuple []int) string {
	parts := make([]string, len(tuple))
	for i, p := range tuple {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func compareTuples(a, b []int) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return slices.Compare(a, b)
}
