// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import "math"

// detectTear looks for a contiguous band of rows that still match the previous
// frame, anchored at top or bottom edge, with the remaining rows predominantly
// changed. Returns boundary position as a fraction of frame height.
//
// Old above / new below yields offset top/n, new above / old below yields
// (n-bottom)/n. If both qualify the longer old band wins.
func detectTear(rows []float64, cfg EngineConfig) (float64, bool) {
	n := len(rows)
	if n < 2 {
		return 0, false
	}
	matches := func(d float64) bool { return d < cfg.TearRowThreshold }

	top := 0
	for top < n && matches(rows[top]) {
		top++
	}
	bottom := 0
	for bottom < n && matches(rows[n-1-bottom]) {
		bottom++
	}

	minBand := int(math.Ceil(cfg.TearMinBand * float64(n)))
	if minBand < 1 {
		minBand = 1
	}
	qualifies := func(band int, rest []float64) bool {
		if band < minBand || len(rest) < minBand {
			return false
		}
		changed := 0
		for _, d := range rest {
			if !matches(d) {
				changed++
			}
		}
		return float64(changed)/float64(len(rest)) >= cfg.TearChangedFraction
	}

	topOK := qualifies(top, rows[top:])
	bottomOK := qualifies(bottom, rows[:n-bottom])
	switch {
	case topOK && (!bottomOK || top >= bottom):
		return float64(top) / float64(n), true
	case bottomOK:
		return float64(n-bottom) / float64(n), true
	}
	return 0, false
}
