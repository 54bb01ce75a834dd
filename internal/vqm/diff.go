// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// rowDifferences computes mean absolute RGB difference of every step-th row,
// sampling every step-th pixel within a row. Frames must be of equal size.
// Values are on 0..255 scale, alpha is ignored.
func rowDifferences(cur, prev *image.RGBA, step int) []float64 {
	if step < 1 {
		step = 1
	}
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	diffs := make([]float64, 0, (h+step-1)/step)
	for y := 0; y < h; y += step {
		ci := cur.PixOffset(cur.Rect.Min.X, cur.Rect.Min.Y+y)
		pi := prev.PixOffset(prev.Rect.Min.X, prev.Rect.Min.Y+y)
		var sum, n int
		for x := 0; x < w; x += step {
			o := 4 * x
			sum += absDiff(cur.Pix[ci+o], prev.Pix[pi+o]) +
				absDiff(cur.Pix[ci+o+1], prev.Pix[pi+o+1]) +
				absDiff(cur.Pix[ci+o+2], prev.Pix[pi+o+2])
			n += 3
		}
		if n == 0 {
			diffs = append(diffs, 0)
			continue
		}
		diffs = append(diffs, float64(sum)/float64(n))
	}
	return diffs
}

// frameDifference is the mean of row differences.
func frameDifference(rows []float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	return stat.Mean(rows, nil)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func sameSize(a, b *image.RGBA) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}
