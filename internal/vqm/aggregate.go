// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregateMetric summarizes log rows of a single source.
type AggregateMetric struct {
	Source     string
	Frames     int
	Duplicates int
	Tears      int
	Framerate  Metric
	Frametime  Metric
}

type Metric struct {
	Mean         float64
	HarmonicMean float64
	Min          float64
	Max          float64
	StDev        float64
	Variance     float64
	P95          float64
	P99          float64
}

// Aggregate computes AggregateMetric from rows of one source. Rows of other
// sources must be filtered out by the caller, see FrameMetrics.BySource.
func Aggregate(fm FrameMetrics) AggregateMetric {
	am := AggregateMetric{Frames: len(fm)}
	if len(fm) > 0 {
		am.Source = fm[0].Source
	}
	for _, m := range fm {
		if m.Duplicate {
			am.Duplicates++
		}
		if m.Tear {
			am.Tears++
		}
	}
	am.Framerate = aggregate(fm.Framerates())
	am.Frametime = aggregate(fm.Frametimes())
	return am
}

func aggregate(v []float64) Metric {
	var m Metric
	if len(v) == 0 {
		return m
	}
	sorted := make([]float64, len(v))
	copy(sorted, v)
	sort.Float64s(sorted)

	m.Min = floats.Min(sorted)
	m.Max = floats.Max(sorted)
	m.HarmonicMean = stat.HarmonicMean(sorted, nil)
	m.Variance = stat.Variance(sorted, nil)
	m.Mean, m.StDev = stat.MeanStdDev(sorted, nil)
	m.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	m.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return m
}
