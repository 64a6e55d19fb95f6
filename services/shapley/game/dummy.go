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
	"fmt"
	"slices"
)

// DummyGame is a benchmark game with a closed-form Shapley value.
//
// Description:
//
//	v(S) = |S|/n + 1 if every interaction player is in S
//	v(S) = |S|/n     otherwise
//
//	Each player contributes 1/n regardless of context. The interaction
//	bonus of 1 is split evenly between the interaction players, so a
//	non-interaction player has Shapley value 1/n and an interaction
//	player has 1/n + 1/|interaction|.
//
// Thread Safety: Safe for concurrent use.
type DummyGame struct {
	AccessCounter
	n           int
	interaction []int
}

// NewDummyGame creates a dummy game of n players.
//
// Inputs:
//   - n: Number of players. Must be at least 1.
//   - interaction: Players that jointly earn the bonus. Each must be in
//     [0, n). Duplicates are collapsed. Empty means no bonus.
//
// Outputs:
//   - *DummyGame: The game. Nil on error.
//   - error: ErrInvalidPlayerCount or ErrInvalidPlayer.
func NewDummyGame(n int, interaction ...int) (*DummyGame, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayerCount, n)
	}
	players := slices.Clone(interaction)
	slices.Sort(players)
	players = slices.Compact(players)
	for _, p := range players {
		if p < 0 || p >= n {
			return nil, fmt.Errorf("%w: interaction player %d with n=%d", ErrInvalidPlayer, p, n)
		}
	}
	return &DummyGame{n: n, interaction: players}, nil
}

// NumPlayers returns n.
func (d *DummyGame) NumPlayers() int {
	return d.n
}

// Interaction returns the sorted interaction players.
func (d *DummyGame) Interaction() []int {
	return slices.Clone(d.interaction)
}

// Value evaluates v(coalition) and increments the access counter.
func (d *DummyGame) Value(_ context.Context, coalition Coalition) (float64, error) {
	d.Inc()
	if err := CheckCoalition(d.n, coalition); err != nil {
		return 0, err
	}
	value := float64(coalition.Size()) / float64(d.n)
	if len(d.interaction) > 0 && d.hasInteraction(coalition) {
		value += 1.0
	}
	return value, nil
}

// ShapleyValue returns the closed-form Shapley value of player i.
func (d *DummyGame) ShapleyValue(i int) float64 {
	value := 1.0 / float64(d.n)
	if slices.Contains(d.interaction, i) {
		value += 1.0 / float64(len(d.interaction))
	}
	return value
}

func (d *DummyGame) hasInteraction(c Coalition) bool {
	for _, p := range d.interaction {
		if !c[p] {
			return false
		}
	}
	return true
}

var _ Game = (*DummyGame)(nil)
