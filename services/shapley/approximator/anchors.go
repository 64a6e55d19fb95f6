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

import "fmt"

// AnchorPoints returns m evenly spaced participation probabilities.
//
// Description:
//
//	For m == 1 the single anchor is 0.5. For m > 1 the anchors are
//	i/(m-1) for i in [0, m), so the first is exactly 0 and the last
//	exactly 1.
//
// Inputs:
//   - m: Number of anchor points. Must be positive.
//
// Outputs:
//   - []float64: The anchors, non-decreasing. Nil on error.
//   - error: ErrInvalidArgument when m <= 0.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func AnchorPoints(m int) ([]float64, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: anchor point count must be positive, got %d", ErrInvalidArgument, m)
	}
	if m == 1 {
		return []float64{0.5}, nil
	}
	points := make([]float64, m)
	last := float64(m - 1)
	for i := range points {
		points[i] = float64(i) / last
	}
	return points, nil
}
