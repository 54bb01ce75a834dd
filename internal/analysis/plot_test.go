// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Tests for plotting related functionality.

package analysis

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/evolution-gaming/tearscope/internal/vqm"
)

// fixFrameMetrics provides log rows of a source alternating between 60 and 30
// fps, with a tear every 10th batch.
func fixFrameMetrics(name string, n int) vqm.FrameMetrics {
	fm := make(vqm.FrameMetrics, 0, n)
	for i := 0; i < n; i++ {
		m := vqm.FrameMetric{Source: name, Batch: i}
		if i > 0 {
			ft := 1000.0 / 60
			if i%3 == 0 {
				ft *= 2
			}
			fps := 1000 / ft
			m.FrametimeMs, m.Framerate = &ft, &fps
			if i%10 == 0 {
				off := 0.4
				m.Tear, m.TearOffset = true, &off
			}
		}
		fm = append(fm, m)
	}
	return fm
}

func Test_CreateHistogramPlot(t *testing.T) {
	values := fixFrameMetrics("a.mp4", 50).Frametimes()
	title := "Test plot title"

	t.Run("Creating histogram plot should succeed", func(t *testing.T) {
		got, err := CreateHistogramPlot(values, title)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if diff := cmp.Diff(title, got.X.Label.Text); diff != "" {
			t.Errorf("Plot title mismatch (-want +got):\n%s", diff)
		}
	})
}

func Test_CreateCDFPlot(t *testing.T) {
	values := fixFrameMetrics("a.mp4", 50).Frametimes()
	title := "Test plot title"

	t.Run("Creating CDF plot should succeed", func(t *testing.T) {
		got, err := CreateCDFPlot(values, title)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if diff := cmp.Diff(title, got.X.Label.Text); diff != "" {
			t.Errorf("Plot title mismatch (-want +got):\n%s", diff)
		}
	})
}

func Test_CreateFrametimePlot(t *testing.T) {
	fm := fixFrameMetrics("a.mp4", 50)

	got, err := CreateFrametimePlot(fm)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff("Frametime (ms)", got.Y.Label.Text); diff != "" {
		t.Errorf("Plot label mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(49, len(frametimeXYs(fm))); diff != "" {
		t.Errorf("Frametime points mismatch (-want +got):\n%s", diff)
	}
}

func Test_MultiPlotSource(t *testing.T) {
	outDir := t.TempDir()

	t.Run("Creating source multi-plot should succeed", func(t *testing.T) {
		outFile := path.Join(outDir, "a_framerate.png")
		err := MultiPlotSource(fixFrameMetrics("a.mp4", 100), "a.mp4", outFile)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		fi, err := os.Stat(outFile)
		if err != nil {
			t.Fatalf("Unexpected error from os.Stat: %v", err)
		}

		// We can't realistically check generated image, instead will do some
		// reasonable check on file properties.
		if fi.Size() <= 10 {
			t.Errorf("Resulting plot file size too small: %+v", fi)
		}
	})

	t.Run("Source without changed frames is skipped", func(t *testing.T) {
		outFile := path.Join(outDir, "static.png")
		fm := vqm.FrameMetrics{{Source: "static.mp4"}, {Source: "static.mp4", Batch: 1, Duplicate: true}}
		err := MultiPlotSource(fm, "static.mp4", outFile)
		if !errors.Is(err, ErrNoFrametimes) {
			t.Errorf("Expected ErrNoFrametimes, got: %v", err)
		}
		if _, err := os.Stat(outFile); !os.IsNotExist(err) {
			t.Errorf("Plot file should not exist: %v", err)
		}
	})
}

func Test_PlotComparison(t *testing.T) {
	outFile := path.Join(t.TempDir(), "comparison.png")
	groups := []vqm.FrameMetrics{
		fixFrameMetrics("a.mp4", 30),
		fixFrameMetrics("b.mp4", 20),
		{{Source: "static.mp4"}},
	}

	if err := PlotComparison(groups, "Comparison", outFile); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	fi, err := os.Stat(outFile)
	if err != nil {
		t.Fatalf("Unexpected error from os.Stat: %v", err)
	}
	if fi.Size() <= 10 {
		t.Errorf("Resulting plot file size too small: %+v", fi)
	}
}
