// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidPlayerCount is returned when a game is created with n < 1.
	ErrInvalidPlayerCount = errors.New("player count must be positive")

	// ErrInvalidPlayer is returned when a player index is outside [0, n).
	ErrInvalidPlayer = errors.New("player index out of range")

	// ErrCoalitionSize is returned when a coalition's length differs from n.
	ErrCoalitionSize = errors.New("coalition size does not match player count")
)

// -----------------------------------------------------------------------------
// Coalition
// -----------------------------------------------------------------------------

// Coalition is a membership vector: Coalition[i] is true when player i is in
// the coalition. Its length is the game's player count.
type Coalition []bool

// NewCoalition returns the empty coalition of n players.
func NewCoalition(n int) Coalition {
	return make(Coalition, n)
}

// FullCoalition returns the grand coalition of n players.
func FullCoalition(n int) Coalition {
	c := make(Coalition, n)
	for i := range c {
		c[i] = true
	}
	return c
}

// CoalitionOf returns a coalition of n players containing exactly the given
// members. Indices outside [0, n) are ignored.
func CoalitionOf(n int, members ...int) Coalition {
	c := make(Coalition, n)
	for _, m := range members {
		if m >= 0 && m < n {
			c[m] = true
		}
	}
	return c
}

// Size returns the number of members.
func (c Coalition) Size() int {
	size := 0
	for _, in := range c {
		if in {
			size++
		}
	}
	return size
}

// Contains reports whether player i is a member.
func (c Coalition) Contains(i int) bool {
	return i >= 0 && i < len(c) && c[i]
}

// Members returns the member indices in ascending order.
func (c Coalition) Members() []int {
	members := make([]int, 0, len(c))
	for i, in := range c {
		if in {
			members = append(members, i)
		}
	}
	return members
}

// Clone returns an independent copy.
func (c Coalition) Clone() Coalition {
	out := make(Coalition, len(c))
	copy(out, c)
	return out
}

// With returns a copy of c with player i added.
func (c Coalition) With(i int) Coalition {
	out := c.Clone()
	if i >= 0 && i < len(out) {
		out[i] = true
	}
	return out
}

// Without returns a copy of c with player i removed.
func (c Coalition) Without(i int) Coalition {
	out := c.Clone()
	if i >= 0 && i < len(out) {
		out[i] = false
	}
	return out
}

// String renders the coalition as a set, e.g. "{0,3}".
func (c Coalition) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for idx, m := range c.Members() {
		if idx > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(m))
	}
	b.WriteByte('}')
	return b.String()
}

// -----------------------------------------------------------------------------
// Game Interface
// -----------------------------------------------------------------------------

// Game is a cooperative game exposed as a value-function oracle.
//
// Thread Safety: Implementations must be safe for concurrent use when an
// approximator is configured with more than one worker.
type Game interface {
	// NumPlayers returns n, the number of players.
	NumPlayers() int

	// Value evaluates the value function on a coalition.
	//
	// Inputs:
	//   - ctx: Context for cancellation. Must not be nil.
	//   - coalition: Membership vector of length NumPlayers().
	//
	// Outputs:
	//   - float64: v(coalition).
	//   - error: Non-nil if the coalition is malformed or the game failed.
	Value(ctx context.Context, coalition Coalition) (float64, error)
}

// CheckCoalition returns ErrCoalitionSize when c does not have n entries.
func CheckCoalition(n int, c Coalition) error {
	if len(c) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrCoalitionSize, len(c), n)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Access Counter
// -----------------------------------------------------------------------------

// AccessCounter counts value-function invocations. Embed it in a game and
// call Inc on every evaluation.
//
// Thread Safety: Safe for concurrent use.
type AccessCounter struct {
	count atomic.Int64
}

// Inc records one invocation.
func (a *AccessCounter) Inc() {
	a.count.Add(1)
}

// AccessCount returns the number of invocations recorded so far.
func (a *AccessCounter) AccessCount() int64 {
	return a.count.Load()
}

// ResetAccessCount sets the counter back to zero.
func (a *AccessCounter) ResetAccessCount() {
	a.count.Store(0)
}

// -----------------------------------------------------------------------------
// Counted
// -----------------------------------------------------------------------------

// Counted wraps a Game and counts every Value call, including calls that
// return an error.
type Counted struct {
	AccessCounter
	inner Game
}

// Count wraps g with an access counter.
func Count(g Game) *Counted {
	return &Counted{inner: g}
}

// NumPlayers returns the wrapped game's player count.
func (c *Counted) NumPlayers() int {
	return c.inner.NumPlayers()
}

// Value counts the call and delegates to the wrapped game.
func (c *Counted) Value(ctx context.Context, coalition Coalition) (float64, error) {
	c.Inc()
	return c.inner.Value(ctx, coalition)
}

// Unwrap returns the wrapped game.
func (c *Counted) Unwrap() Game {
	return c.inner
}

// -----------------------------------------------------------------------------
// ValueFunc
// -----------------------------------------------------------------------------

// ValueFunc adapts a plain function into a counted Game.
type ValueFunc struct {
	AccessCounter
	n  int
	fn func(Coalition) float64
}

// NewValueFunc creates a game of n players evaluated by fn.
//
// Outputs:
//   - *ValueFunc: The game. Nil on error.
//   - error: ErrInvalidPlayerCount if n < 1, or if fn is nil.
func NewValueFunc(n int, fn func(Coalition) float64) (*ValueFunc, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayerCount, n)
	}
	if fn == nil {
		return nil, errors.New("value function must not be nil")
	}
	return &ValueFunc{n: n, fn: fn}, nil
}

// NumPlayers returns n.
func (v *ValueFunc) NumPlayers() int {
	return v.n
}

// Value evaluates the wrapped function.
func (v *ValueFunc) Value(_ context.Context, coalition Coalition) (float64, error) {
	v.Inc()
	if err := CheckCoalition(v.n, coalition); err != nil {
		return 0, err
	}
	return v.fn(coalition), nil
}

// Verify interface compliance at compile time.
var (
	_ Game = (*Counted)(nil)
	_ Game = (*ValueFunc)(nil)
)
