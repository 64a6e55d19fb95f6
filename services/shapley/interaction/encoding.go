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
)

// document is the serialised form shared by the YAML and JSON encoders.
// NaN values are written as null.
type document struct {
	Index            string        `yaml:"index" json:"index"`
	MaxOrder         int           `yaml:"max_order" json:"max_order"`
	MinOrder         int           `yaml:"min_order" json:"min_order"`
	NPlayers         int           `yaml:"n_players" json:"n_players"`
	EstimationBudget int           `yaml:"estimation_budget" json:"estimation_budget"`
	Estimated        bool          `yaml:"estimated" json:"estimated"`
	BaselineValue    *float64      `yaml:"baseline_value" json:"baseline_value"`
	Values           []documentRow `yaml:"values" json:"values"`
	Diagnostics      *diagDocument `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
}

type documentRow struct {
	Players []int    `yaml:"players,flow" json:"players"`
	Value   *float64 `yaml:"value" json:"value"`
}

type diagDocument struct {
	Samples   []int      `yaml:"samples,flow" json:"samples"`
	StdErr    []*float64 `yaml:"std_err,flow" json:"std_err"`
	Unsampled []int      `yaml:"unsampled,flow" json:"unsampled"`
}

func (v *Values) document() document {
	doc := document{
		Index:            v.Index,
		MaxOrder:         v.MaxOrder,
		MinOrder:         v.MinOrder,
		NPlayers:         v.NPlayers,
		EstimationBudget: v.EstimationBudget,
		Estimated:        v.Estimated,
		BaselineValue:    nullable(v.BaselineValue),
	}
	for _, tuple := range v.Tuples() {
		doc.Values = append(doc.Values, documentRow{
			Players: tuple,
			Value:   nullable(v.Value(tuple...)),
		})
	}
	if d := v.Diagnostics; d != nil {
		dd := &diagDocument{
			Samples:   d.Samples,
			Unsampled: d.Unsampled,
		}
		if dd.Unsampled == nil {
			dd.Unsampled = []int{}
		}
		for _, se := range d.StdErr {
			dd.StdErr = append(dd.StdErr, nullable(se))
		}
		doc.Diagnostics = dd
	}
	return doc
}

// MarshalYAML implements yaml.Marshaler.
func (v *Values) MarshalYAML() (any, error) {
	return v.document(), nil
}

// MarshalJSON implements json.Marshaler.
func (v *Values) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.document())
}

func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
