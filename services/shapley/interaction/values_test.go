// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interaction

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newSVValues() *Values {
	v := New("SV", 3, 0, 1)
	v.Set(0.1)
	v.BaselineValue = 0.1
	v.Set(0.5, 2)
	v.Set(0.25, 0)
	v.Set(math.NaN(), 1)
	v.EstimationBudget = 42
	v.Estimated = true
	return v
}

func TestValues_GetAndSet(t *testing.T) {
	v := newSVValues()

	got, ok := v.Get(2)
	require.True(t, ok)
	assert.Equal(t, 0.5, got)

	got, ok = v.Get()
	require.True(t, ok)
	assert.Equal(t, 0.1, got)

	_, ok = v.Get(0, 1)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v.Value(0, 1)))

	v.Set(1.5, 2, 0)
	assert.Equal(t, 1.5, v.Value(0, 2), "tuples are order independent")
	assert.Equal(t, 5, v.Len())
}

func TestValues_Tuples(t *testing.T) {
	v := newSVValues()
	v.Set(9, 1, 0)

	assert.Equal(t, [][]int{{}, {0}, {1}, {2}, {0, 1}}, v.Tuples())
}

func TestValues_FirstOrderAndSum(t *testing.T) {
	v := newSVValues()

	first := v.FirstOrder()
	require.Len(t, first, 3)
	assert.Equal(t, 0.25, first[0])
	assert.True(t, math.IsNaN(first[1]))
	assert.Equal(t, 0.5, first[2])
	assert.InDelta(t, 0.75, v.Sum(), 1e-12)
}

func TestTupleString(t *testing.T) {
	assert.Equal(t, "()", TupleString(nil))
	assert.Equal(t, "(3,)", TupleString([]int{3}))
	assert.Equal(t, "(1, 2)", TupleString([]int{1, 2}))
}

func TestValues_MarshalJSON_NaNIsNull(t *testing.T) {
	v := newSVValues()
	v.Diagnostics = &Diagnostics{
		Samples:   []int{4, 0, 4},
		StdErr:    []float64{0.01, math.NaN(), 0.02},
		Unsampled: []int{1},
	}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "SV", decoded["index"])
	assert.Equal(t, float64(42), decoded["estimation_budget"])
	assert.Equal(t, true, decoded["estimated"])

	rows := decoded["values"].([]any)
	require.Len(t, rows, 4)
	nanRow := rows[2].(map[string]any)
	assert.Equal(t, []any{float64(1)}, nanRow["players"])
	assert.Nil(t, nanRow["value"])

	diag := decoded["diagnostics"].(map[string]any)
	assert.Equal(t, []any{float64(1)}, diag["unsampled"])
}

func TestValues_MarshalYAML(t *testing.T) {
	v := newSVValues()

	data, err := yaml.Marshal(v)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.Contains(out, "index: SV"), out)
	assert.True(t, strings.Contains(out, "max_order: 1"), out)
	assert.True(t, strings.Contains(out, "estimated: true"), out)
	assert.False(t, strings.Contains(out, "diagnostics"), out)
}
