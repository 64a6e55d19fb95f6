// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the shapley CLI.
package ux

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Header    lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

// Printer writes CLI output, styled when the destination is a terminal
// and plain otherwise.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter returns a Printer for w. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// NewPlainPrinter returns a Printer that never styles.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Styled reports whether the printer emits ANSI styling.
func (p *Printer) Styled() bool {
	return p.styled
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

// Title prints a styled title.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.render(Styles.Title, text))
}

// Success prints a success line with a checkmark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Success, string(IconSuccess)), text)
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Warning, string(IconWarning)), p.render(Styles.Warning, text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Error, string(IconError)), p.render(Styles.Error, text))
}

// Info prints an informational key/value line.
func (p *Printer) Info(key string, value any) {
	fmt.Fprintf(p.w, "%s %v\n", p.render(Styles.Muted, key+":"), value)
}

// Box prints content in a rounded box, or as "title: content" when plain.
func (p *Printer) Box(title, content string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// =============================================================================
// Estimates Table
// =============================================================================

// EstimateRow is one line of the estimates table.
type EstimateRow struct {
	// Label names the tuple, e.g. "(3,)".
	Label string

	// Estimate is the value. NaN renders as "n/a".
	Estimate float64

	// Samples is the sample count. Negative hides the column value.
	Samples int

	// StdErr is the standard error. NaN renders as "n/a".
	StdErr float64

	// Exact is the reference value when compared. NaN hides it.
	Exact float64

	// CI is the confidence interval [lower, upper]; shown when HasCI.
	CI [2]float64

	// HasCI marks CI as computed. A row without one renders "n/a".
	HasCI bool
}

// Table prints rows as an aligned table. Exact and error columns appear
// when any row carries an exact value, the ci column when any row has an
// interval.
func (p *Printer) Table(rows []EstimateRow) {
	withExact, withCI := false, false
	for _, r := range rows {
		withExact = withExact || !math.IsNaN(r.Exact)
		withCI = withCI || r.HasCI
	}

	header := []string{"tuple", "estimate", "samples", "std err"}
	if withCI {
		header = append(header, "ci")
	}
	if withExact {
		header = append(header, "exact", "abs err")
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := []string{r.Label, formatFloat(r.Estimate), formatCount(r.Samples), formatFloat(r.StdErr)}
		if withCI {
			line = append(line, formatInterval(r))
		}
		if withExact {
			line = append(line, formatFloat(r.Exact), formatFloat(math.Abs(r.Estimate-r.Exact)))
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, line := range cells {
		for i, c := range line {
			widths[i] = max(widths[i], len(c))
		}
	}

	fmt.Fprintln(p.w, p.render(Styles.Header, joinPadded(header, widths)))
	fmt.Fprintln(p.w, p.render(Styles.Muted, rule(widths)))
	for i, line := range cells {
		text := joinPadded(line, widths)
		if math.IsNaN(rows[i].Estimate) {
			text = p.render(Styles.Warning, text)
		}
		fmt.Fprintln(p.w, text)
	}
}

func joinPadded(cols []string, widths []int) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == 0 {
			fmt.Fprintf(&b, "%-*s", widths[i], c)
		} else {
			fmt.Fprintf(&b, "%*s", widths[i], c)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func rule(widths []int) string {
	total := 0
	for _, w := range widths {
		total += w
	}
	return strings.Repeat("─", total+2*(len(widths)-1))
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.6f", v)
}

func formatInterval(r EstimateRow) string {
	if !r.HasCI {
		return "n/a"
	}
	return fmt.Sprintf("[%.4f, %.4f]", r.CI[0], r.CI[1])
}

func formatCount(n int) string {
	if n < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}
