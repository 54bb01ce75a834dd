// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package compose

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultCellWidth = 640
	gutter           = 4
)

var (
	background = color.RGBA{R: 16, G: 16, B: 16, A: 255}
	textColor  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	tearColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	dupColor   = color.RGBA{R: 255, G: 128, B: 0, A: 255}
)

// Grid lays out one cell per source slot, row major, Columns cells per row.
// Item i is placed into cell Sample.SourceIndex, cells of sources missing from
// a batch stay empty so that geometry is stable over the whole run.
//
// Cell height is derived from the aspect ratio of the first composed frame and
// kept afterwards. Frames are scaled to fit their cell preserving aspect ratio.
type Grid struct {
	// Number of source slots, must be positive.
	Slots int
	// Cells per row, 0 means ceil(sqrt(Slots)).
	Columns int
	// Cell width in pixels, 0 means DefaultCellWidth.
	CellWidth int
	// Skip text and tear marker overlay.
	NoOverlay bool
	// Scaler used for frames, nil means draw.ApproxBiLinear.
	Scaler draw.Scaler

	cellHeight int
}

// NewGrid creates Grid for slots sources.
func NewGrid(slots, columns, cellWidth int) *Grid {
	return &Grid{Slots: slots, Columns: columns, CellWidth: cellWidth}
}

// Layout returns effective columns, rows and cell size.
func (g *Grid) Layout() (cols, rows, cellW, cellH int) {
	cols = g.Columns
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(g.Slots))))
	}
	if cols > g.Slots {
		cols = g.Slots
	}
	if cols < 1 {
		cols = 1
	}
	rows = (g.Slots + cols - 1) / cols
	cellW = g.CellWidth
	if cellW <= 0 {
		cellW = DefaultCellWidth
	}
	return cols, rows, cellW, g.cellHeight
}

// Compose implements Sink.
func (g *Grid) Compose(items []Item) (image.Image, error) {
	if err := g.validate(items); err != nil {
		return nil, err
	}
	cols, rows, cellW, cellH := g.Layout()
	if cellH == 0 {
		b := items[0].Frame.Rect
		cellH = int(math.Round(float64(cellW) * float64(b.Dy()) / float64(b.Dx())))
		if cellH < 1 {
			cellH = 1
		}
		g.cellHeight = cellH
	}

	out := image.NewRGBA(image.Rect(0, 0, cols*cellW+(cols+1)*gutter, rows*cellH+(rows+1)*gutter))
	draw.Draw(out, out.Rect, image.NewUniform(background), image.Point{}, draw.Src)

	scaler := g.Scaler
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	for _, it := range items {
		slot := it.Sample.SourceIndex
		cell := image.Rect(0, 0, cellW, cellH).Add(image.Pt(
			gutter+(slot%cols)*(cellW+gutter),
			gutter+(slot/cols)*(cellH+gutter),
		))
		dst := fit(it.Frame.Rect, cell)
		scaler.Scale(out, dst, it.Frame, it.Frame.Rect, draw.Src, nil)
		if !g.NoOverlay {
			overlay(out, dst, it)
		}
	}
	return out, nil
}

func (g *Grid) validate(items []Item) error {
	if g.Slots < 1 {
		return compositionErrorf("grid has no slots")
	}
	if len(items) == 0 {
		return compositionErrorf("no frames to compose")
	}
	if len(items) > g.Slots {
		return compositionErrorf("%d frames for %d slots", len(items), g.Slots)
	}
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		slot := it.Sample.SourceIndex
		if slot < 0 || slot >= g.Slots {
			return compositionErrorf("source %d outside of %d slots", slot, g.Slots)
		}
		if seen[slot] {
			return compositionErrorf("source %d given twice", slot)
		}
		seen[slot] = true
		if it.Frame == nil || it.Frame.Rect.Empty() {
			return compositionErrorf("source %d has empty frame", slot)
		}
	}
	return nil
}

// fit returns largest rectangle with src aspect ratio centered in cell.
func fit(src, cell image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	cw, ch := float64(cell.Dx()), float64(cell.Dy())
	scale := math.Min(cw/sw, ch/sh)
	w := int(math.Max(1, math.Round(sw*scale)))
	h := int(math.Max(1, math.Round(sh*scale)))
	x := cell.Min.X + (cell.Dx()-w)/2
	y := cell.Min.Y + (cell.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func overlay(dst *image.RGBA, r image.Rectangle, it Item) {
	s := it.Sample
	lines := []string{it.Label}
	if s.HasFramerate {
		lines = append(lines, fmt.Sprintf("%.2f fps", s.Framerate))
	} else {
		lines = append(lines, "-- fps")
	}
	if s.HasFrametime {
		lines = append(lines, fmt.Sprintf("%.2f ms", s.FrametimeMs))
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(textColor), Face: face}
	lineHeight := face.Metrics().Height.Ceil()
	for i, l := range lines {
		d.Dot = fixed.P(r.Min.X+4, r.Min.Y+(i+1)*lineHeight)
		d.DrawString(l)
	}

	if s.IsDuplicate {
		d.Src = image.NewUniform(dupColor)
		d.Dot = fixed.P(r.Max.X-4-d.MeasureString("DUP").Ceil(), r.Min.Y+lineHeight)
		d.DrawString("DUP")
	}

	if s.TearDetected {
		y := r.Min.Y + int(math.Round(s.TearOffset*float64(r.Dy())))
		if y >= r.Max.Y {
			y = r.Max.Y - 1
		}
		line := image.Rect(r.Min.X, y-1, r.Max.X, y+1).Intersect(r)
		draw.Draw(dst, line, image.NewUniform(tearColor), image.Point{}, draw.Src)
	}
}
