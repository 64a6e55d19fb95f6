// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianShapley/pkg/ux"
	"github.com/AleutianAI/AleutianShapley/services/shapley/interaction"
	"github.com/AleutianAI/AleutianShapley/services/shapley/stats"
)

// ciLevel is the confidence level of reported intervals.
const ciLevel = 0.95

// report is the machine-readable result of a run.
type report struct {
	RunID     string              `yaml:"run_id" json:"run_id"`
	Estimates *interaction.Values `yaml:"estimates" json:"estimates"`

	// Intervals holds one normal interval per player; nil where the
	// standard error is undefined.
	Intervals []*stats.ConfidenceInterval `yaml:"confidence_intervals,omitempty" json:"confidence_intervals,omitempty"`

	Exact       *interaction.Values `yaml:"exact,omitempty" json:"exact,omitempty"`
	MaxAbsError *float64            `yaml:"max_abs_error,omitempty" json:"max_abs_error,omitempty"`
}

// newReport builds the report of a run, with intervals for sampled
// estimates and the worst error against exact when given.
func newReport(runID string, estimates, exact *interaction.Values) (report, error) {
	r := report{RunID: runID, Estimates: estimates, Exact: exact}
	if estimates.Diagnostics != nil {
		r.Intervals = make([]*stats.ConfidenceInterval, estimates.NPlayers)
		for i := range r.Intervals {
			ci, err := stats.NormalCI(estimates.Value(i), estimates.Diagnostics.StdErr[i], ciLevel)
			if err == nil {
				r.Intervals[i] = ci
			}
		}
	}
	if exact != nil {
		worst, err := stats.MaxAbsError(estimates.FirstOrder(), exact.FirstOrder())
		if err != nil {
			return report{}, fmt.Errorf("compare with exact values: %w", err)
		}
		r.MaxAbsError = &worst
	}
	return r, nil
}

// newPrinter honours --no-color.
func newPrinter(w io.Writer) *ux.Printer {
	if flagNoColor {
		return ux.NewPlainPrinter(w)
	}
	return ux.NewPrinter(w)
}

// writeReport renders r in the requested format.
func writeReport(w io.Writer, format string, r report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "table", "":
		writeTable(newPrinter(w), r)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(p *ux.Printer, r report) {
	values := r.Estimates
	if values.Estimated {
		p.Title(fmt.Sprintf("Owen sampling %s estimates", values.Index))
	} else {
		p.Title(fmt.Sprintf("Exact %s values", values.Index))
	}
	if r.RunID != "" {
		p.Info("Run", r.RunID)
	}
	p.Info("Players", values.NPlayers)
	p.Info("Oracle calls", values.EstimationBudget)
	if values.Diagnostics != nil && len(values.Diagnostics.Unsampled) > 0 {
		p.Warning(fmt.Sprintf("players %v received no samples; their estimates are undefined", values.Diagnostics.Unsampled))
	}

	p.Table(tableRows(r))
	p.Info("Sum of estimates", fmt.Sprintf("%.6f", values.Sum()))
	if r.MaxAbsError != nil {
		p.Info("Max abs error", fmt.Sprintf("%.6f", *r.MaxAbsError))
	}
}

// tableRows lists the baseline then every player. Samples and standard
// errors come from the diagnostics when present.
func tableRows(r report) []ux.EstimateRow {
	values := r.Estimates
	rows := make([]ux.EstimateRow, 0, values.NPlayers+1)
	for _, tuple := range values.Tuples() {
		row := ux.EstimateRow{
			Label:    interaction.TupleString(tuple),
			Estimate: values.Value(tuple...),
			Samples:  -1,
			StdErr:   math.NaN(),
			Exact:    math.NaN(),
		}
		if len(tuple) == 1 && values.Diagnostics != nil {
			player := tuple[0]
			row.Samples = values.Diagnostics.Samples[player]
			row.StdErr = values.Diagnostics.StdErr[player]
		}
		if len(tuple) == 1 && r.Intervals != nil {
			if ci := r.Intervals[tuple[0]]; ci != nil {
				row.CI = [2]float64{ci.Lower, ci.Upper}
				row.HasCI = true
			}
		}
		if r.Exact != nil {
			row.Exact = r.Exact.Value(tuple...)
		}
		rows = append(rows, row)
	}
	return rows
}
