// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Metrics log row abstractions.

package vqm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jszwec/csvutil"
)

// FrameMetric is a single metrics log row. Undefined values are nil and
// encode as empty cells.
type FrameMetric struct {
	Source      string   `csv:"source"`
	SourceIndex int      `csv:"source_index"`
	Batch       int      `csv:"batch"`
	FrametimeMs *float64 `csv:"frametime_ms,omitempty"`
	Framerate   *float64 `csv:"framerate,omitempty"`
	Duplicate   bool     `csv:"duplicate"`
	Tear        bool     `csv:"tear"`
	TearOffset  *float64 `csv:"tear_offset,omitempty"`
	Difference  float64  `csv:"difference"`
}

// NewFrameMetric converts Sample into log row for source named name.
func NewFrameMetric(name string, s Sample) FrameMetric {
	fm := FrameMetric{
		Source:      name,
		SourceIndex: s.SourceIndex,
		Batch:       s.BatchIndex,
		Duplicate:   s.IsDuplicate,
		Tear:        s.TearDetected,
		Difference:  s.Difference,
	}
	if s.HasFrametime {
		v := s.FrametimeMs
		fm.FrametimeMs = &v
	}
	if s.HasFramerate {
		v := s.Framerate
		fm.Framerate = &v
	}
	if s.TearDetected {
		v := s.TearOffset
		fm.TearOffset = &v
	}
	return fm
}

type FrameMetrics []FrameMetric

// FromCSV appends rows decoded from CSV with header.
func (fm *FrameMetrics) FromCSV(r io.Reader) error {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("FromCSV() reading header: %w", err)
	}

	for {
		var row FrameMetric
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("FromCSV() decoding row: %w", err)
		}
		*fm = append(*fm, row)
	}
}

// ToCSV writes all rows with header.
func (fm FrameMetrics) ToCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(fm) == 0 {
		if err := enc.EncodeHeader(FrameMetric{}); err != nil {
			return fmt.Errorf("ToCSV() encoding header: %w", err)
		}
	}
	for i := range fm {
		if err := enc.Encode(fm[i]); err != nil {
			return fmt.Errorf("ToCSV() encoding row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("ToCSV() flush: %w", err)
	}
	return nil
}

// BySource groups rows by source index, row order within a source is kept.
func (fm FrameMetrics) BySource() map[int]FrameMetrics {
	out := make(map[int]FrameMetrics)
	for _, m := range fm {
		out[m.SourceIndex] = append(out[m.SourceIndex], m)
	}
	return out
}

// SourceIndices returns sorted distinct source indices.
func (fm FrameMetrics) SourceIndices() []int {
	seen := make(map[int]bool)
	var idx []int
	for _, m := range fm {
		if !seen[m.SourceIndex] {
			seen[m.SourceIndex] = true
			idx = append(idx, m.SourceIndex)
		}
	}
	sort.Ints(idx)
	return idx
}

// Frametimes returns defined frametime values in row order.
func (fm FrameMetrics) Frametimes() []float64 {
	var v []float64
	for _, m := range fm {
		if m.FrametimeMs != nil {
			v = append(v, *m.FrametimeMs)
		}
	}
	return v
}

// Framerates returns defined framerate values in row order.
func (fm FrameMetrics) Framerates() []float64 {
	var v []float64
	for _, m := range fm {
		if m.Framerate != nil {
			v = append(v, *m.Framerate)
		}
	}
	return v
}
