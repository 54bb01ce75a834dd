// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Plot generation related functionality.

package analysis

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"os"
	"sort"

	"github.com/evolution-gaming/tearscope/internal/vqm"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	defaultPlotWidth  = vg.Centimeter * 24
	defaultPlotHeight = vg.Centimeter * 7
)

// ErrNoFrametimes is returned for sources without a single changed frame.
var ErrNoFrametimes = errors.New("no frametime values to plot")

// A custom color palette: color1 as base color and color2 as a darker variant.
var ColorPalette = []color.RGBA{
	// red1
	{R: 230, G: 57, B: 70, A: 255},
	// red2
	{R: 143, G: 35, B: 43, A: 255},
	// green1
	{R: 84, G: 184, B: 50, A: 255},
	// green2
	{R: 50, G: 110, B: 30, A: 255},
	// blue1
	{R: 63, G: 55, B: 201, A: 255},
	// blue2
	{R: 51, G: 45, B: 163, A: 255},
	// purple1
	{R: 86, G: 11, B: 173, A: 255},
	// purple2
	{R: 62, G: 8, B: 125, A: 255},
	// cyan1
	{R: 31, G: 180, B: 206, A: 255},
	// cyan2
	{R: 11, G: 123, B: 143, A: 255},
	// orange1
	{R: 255, G: 174, B: 0, A: 255},
	// orange2
	{R: 173, G: 118, B: 0, A: 255},
}

// CreateCDFPlot creates Cumulative Distribution Function plot for given metric values.
func CreateCDFPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "Probability"
	p.Y.Min = 0

	// We are going to mutate values slice, so make a copy to avoid mangling
	// underlying array and creating unexpected sideffect in caller's scope.
	lValues := make([]float64, len(values))
	copy(lValues, values)
	// Make sure values are sorted
	sort.Float64s(lValues)

	// Have to transform lValues to something that implements plotter.XYer
	// interface so it can be used later on to construct plot.
	cdfValues := make(plotter.XYs, len(lValues))
	for i, v := range lValues {
		cdfValues[i].X = v
		cdfValues[i].Y = stat.CDF(v, stat.Empirical, lValues, nil)
	}

	cdfLine, err := plotter.NewLine(cdfValues)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() creating new Line: %w", err)
	}
	cdfLine.Color = ColorPalette[2]

	p.Add(cdfLine, plotter.NewGrid())
	p.Add(createQuantileLines(p, lValues, 0.5, 0.95, 0.99)...)

	return p, nil
}

// CreateHistogramPlot creates histogram plot for given metric values.
func CreateHistogramPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "N"

	// We are going to mutate values slice, so make a copy to avoid mangling
	// underlying array and creating unexpected sideffect in caller's scope.
	lValues := make([]float64, len(values))
	copy(lValues, values)

	// A number of bins to use for histogram.
	bins := 100
	if len(lValues) < bins {
		bins = len(lValues)
	}

	// Make sure values are sorted.
	sort.Float64s(lValues)

	pHist, err := plotter.NewHist(plotter.Values(lValues), bins)
	if err != nil {
		return p, fmt.Errorf("CreateHistogramPlot() creating new histogram: %w", err)
	}
	pHist.Color = color.Transparent
	pHist.FillColor = ColorPalette[7]

	p.Add(pHist)
	p.Add(plotter.NewGrid())

	return p, nil
}

// CreateSeriesPlot creates a line plot of metric values over batch index.
func CreateSeriesPlot(values plotter.XYs, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Batch #"
	p.Y.Label.Text = name

	line, err := plotter.NewLine(values)
	if err != nil {
		return p, fmt.Errorf("CreateSeriesPlot() creating new Line: %w", err)
	}
	line.Color = ColorPalette[0]
	p.Y.Min = 0

	p.Add(line, plotter.NewGrid())

	return p, nil
}

// CreateFrametimePlot creates frametime over batch index plot with detected
// tears marked.
func CreateFrametimePlot(fm vqm.FrameMetrics) (*plot.Plot, error) {
	p, err := CreateSeriesPlot(frametimeXYs(fm), "Frametime (ms)")
	if err != nil {
		return p, err
	}

	var tears plotter.XYs
	for _, m := range fm {
		if m.Tear && m.FrametimeMs != nil {
			tears = append(tears, plotter.XY{X: float64(m.Batch), Y: *m.FrametimeMs})
		}
	}
	if len(tears) > 0 {
		sc, err := plotter.NewScatter(tears)
		if err != nil {
			return p, fmt.Errorf("CreateFrametimePlot() creating tear Scatter: %w", err)
		}
		sc.GlyphStyle.Color = ColorPalette[10]
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("tear (%d)", len(tears)), sc)
		p.Legend.Top = true
	}

	return p, nil
}

// MultiPlotSource will create framerate/frametime multi plot of a single
// source and save it to a file.
//
// Resulting plot will include framerate and frametime over batches, frametime
// histogram and frametime CDF plot all in one canvas.
func MultiPlotSource(fm vqm.FrameMetrics, title, outFile string) (err error) {
	frametimes := fm.Frametimes()
	if len(frametimes) == 0 {
		return ErrNoFrametimes
	}

	const rows, cols = 4, 1
	plots := make([][]*plot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
	}

	plots[0][0], err = CreateSeriesPlot(framerateXYs(fm), "Framerate (fps)")
	if err != nil {
		return err
	}

	plots[1][0], err = CreateFrametimePlot(fm)
	if err != nil {
		return err
	}

	plots[2][0], err = CreateHistogramPlot(frametimes, "Frametime (ms)")
	if err != nil {
		return err
	}

	plots[3][0], err = CreateCDFPlot(frametimes, "Frametime (ms)")
	if err != nil {
		return err
	}

	// Tweak titles and labels to have better layout and make plots less busy.
	plots[0][0].Title.Text = title + "\n\nEffective framerate"
	plots[0][0].X.Label.Text = ""
	plots[1][0].Title.Text = "Frametime"
	plots[2][0].Title.Text = "Frametime Histogram"
	plots[2][0].X.Label.Text = ""
	plots[3][0].Title.Text = "Cumulative Distribution Function (CDF)"

	return savePlots(plots, outFile)
}

// CreateComparisonPlot creates framerate over batch index plot with one line
// per source.
func CreateComparisonPlot(groups []vqm.FrameMetrics) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Batch #"
	p.Y.Label.Text = "Framerate (fps)"
	p.Y.Min = 0

	for i, fm := range groups {
		xys := framerateXYs(fm)
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return p, fmt.Errorf("CreateComparisonPlot() creating new Line: %w", err)
		}
		// Base colors only, darker variants are used for markers.
		line.Color = ColorPalette[(i*2)%len(ColorPalette)]
		p.Add(line)
		if len(fm) > 0 {
			p.Legend.Add(fm[0].Source, line)
		}
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	return p, nil
}

// PlotComparison will create cross-source framerate comparison plot and save
// it to a file.
func PlotComparison(groups []vqm.FrameMetrics, title, outFile string) error {
	p, err := CreateComparisonPlot(groups)
	if err != nil {
		return err
	}
	p.Title.Text = title
	return savePlots([][]*plot.Plot{{p}}, outFile)
}

// savePlots aligns plots into tiles of a single PNG canvas.
func savePlots(plots [][]*plot.Plot, outFile string) error {
	rows := len(plots)
	if rows == 0 {
		return errors.New("savePlots() nothing to plot")
	}
	cols := len(plots[0])

	img := vgimg.New(defaultPlotWidth, defaultPlotHeight*vg.Length(rows))
	dc := draw.New(img)

	t := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadY: vg.Points(10),
	}

	canvases := plot.Align(plots, t, dc)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			if plots[j][i] != nil {
				plots[j][i].Draw(canvases[j][i])
			}
		}
	}

	w, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("savePlots() error from os.Create(): %w", err)
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("savePlots() failed writing png file: %w", err)
	}

	return nil
}

func framerateXYs(fm vqm.FrameMetrics) plotter.XYs {
	var xys plotter.XYs
	for _, m := range fm {
		if m.Framerate != nil {
			xys = append(xys, plotter.XY{X: float64(m.Batch), Y: *m.Framerate})
		}
	}
	return xys
}

func frametimeXYs(fm vqm.FrameMetrics) plotter.XYs {
	var xys plotter.XYs
	for _, m := range fm {
		if m.FrametimeMs != nil {
			xys = append(xys, plotter.XY{X: float64(m.Batch), Y: *m.FrametimeMs})
		}
	}
	return xys
}

// verticalLine is helper to create a vertical line.
func verticalLine(x, ymin, ymax float64) *plotter.Line {
	line, err := plotter.NewLine(plotter.XYs{
		{X: x, Y: ymin},
		{X: x, Y: ymax},
	})
	// Unlikely to have error here - so just panic in that case.
	if err != nil {
		log.Panic(err)
	}
	return line
}

// createQuantileLines is helper to create vertical Quantile lines.
func createQuantileLines(p *plot.Plot, values []float64, quantiles ...float64) []plot.Plotter {
	var plotters []plot.Plotter
	colorCount := len(ColorPalette)
	for i, q := range quantiles {
		qVal := stat.Quantile(q, stat.Empirical, values, nil)
		qLine := verticalLine(qVal, p.Y.Min, p.Y.Max)
		qLine.LineStyle.Width = vg.Points(1)
		qLine.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		// Safe index with step=2 into ColorPalette with wrap-around to avoid
		// panic in case of bounds check fails.
		qLine.Color = ColorPalette[i*5%colorCount]

		labels, _ := plotter.NewLabels(plotter.XYLabels{
			XYs: plotter.XYs{
				{X: qVal, Y: q},
			},
			Labels: []string{
				fmt.Sprintf("q(%.2f)=%.3f", q, qVal),
			},
		})
		labels.Offset.X = 5
		labels.Offset.Y = -5

		plotters = append(plotters, qLine, labels)
	}
	// Also add mean/average line.
	meanVal := stat.Mean(values, nil)
	meanLine := verticalLine(meanVal, p.Y.Min, p.Y.Max)
	meanLine.Color = ColorPalette[len(ColorPalette)-1]
	qValMean := stat.CDF(meanVal, stat.Empirical, values, nil)
	meanLabel, _ := plotter.NewLabels(plotter.XYLabels{
		XYs: plotter.XYs{
			{X: meanVal, Y: qValMean},
		},
		Labels: []string{
			fmt.Sprintf("mean=%.3f", meanVal),
		},
	})
	meanLabel.Offset.X = 5
	meanLabel.Offset.Y = -5
	plotters = append(plotters, meanLine, meanLabel)

	return plotters
}
