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
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianShapley/services/shapley/approximator"
)

func runAnchors(cmd *cobra.Command, args []string) error {
	m, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("anchor count %q is not an integer", args[0])
	}
	return anchors(cmd.OutOrStdout(), m)
}

// anchors prints one anchor point per line.
func anchors(out io.Writer, m int) error {
	points, err := approximator.AnchorPoints(m)
	if err != nil {
		return err
	}
	for _, q := range points {
		if _, err := fmt.Fprintln(out, strconv.FormatFloat(q, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}
