// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Frame level metrics: duplicate detection, frametime, effective framerate and
// screen tear classification.

package vqm

import (
	"image"
	"math"

	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/source"
)

// EngineConfig holds classification thresholds.
type EngineConfig struct {
	// Frame difference score (mean absolute RGB difference, 0..255) below which
	// a frame is a duplicate of its predecessor.
	DuplicateThreshold float64
	// Sample every PixelStep-th pixel in both axes.
	PixelStep int
	// Frametime window size, 0 means one second worth of recorded frames.
	WindowSize  int
	EnableTears bool
	// Row difference below which a row still shows the previous frame.
	TearRowThreshold float64
	// Minimal height of old and new band, fraction of frame height.
	TearMinBand float64
	// Minimal fraction of changed rows outside the old band.
	TearChangedFraction float64
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DuplicateThreshold:  1.0,
		PixelStep:           1,
		WindowSize:          0,
		EnableTears:         true,
		TearRowThreshold:    1.0,
		TearMinBand:         0.05,
		TearChangedFraction: 0.9,
	}
}

// Sample is a metric sample derived for one frame of one source.
type Sample struct {
	SourceIndex int
	BatchIndex  int
	IsDuplicate bool
	// Difference score against previous frame, 0 for first frame.
	Difference float64
	// Frametime in ms, defined only on changed frames.
	FrametimeMs  float64
	HasFrametime bool
	// Effective framerate, undefined until the first changed frame.
	Framerate    float64
	HasFramerate bool
	TearDetected bool
	// Tear boundary as a fraction of frame height, [0,1].
	TearOffset        float64
	ResolutionChanged bool
}

// SourceStats are per-source totals since last Reset.
type SourceStats struct {
	Samples    int
	Duplicates int
	Changes    int
	Tears      int
}

type sourceState struct {
	interval  float64
	prev      *image.RGBA
	elapsed   float64
	dupRun    int
	window    *Window
	framerate float64
	warm      bool
	stats     SourceStats
}

// Engine derives metric samples from frame batches. Not safe for concurrent
// use.
type Engine struct {
	cfg    EngineConfig
	fps    []float64
	states []*sourceState
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.PixelStep < 1 {
		cfg.PixelStep = 1
	}
	return &Engine{cfg: cfg}
}

// Config returns effective engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Reset discards all per-source state. Capture interval of source i becomes
// 1000/recordedFramerates[i] ms, non-positive framerates fall back to
// source.DefaultRecordedFramerate.
func (e *Engine) Reset(recordedFramerates []float64) {
	e.fps = make([]float64, len(recordedFramerates))
	for i, f := range recordedFramerates {
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			f = source.DefaultRecordedFramerate
		}
		e.fps[i] = f
	}
	e.states = make([]*sourceState, len(e.fps))
}

// Process derives one Sample per batch entry, preserving entry order.
func (e *Engine) Process(b source.Batch) []Sample {
	samples := make([]Sample, 0, len(b.Entries))
	for _, entry := range b.Entries {
		samples = append(samples, e.processFrame(b.Index, entry))
	}
	return samples
}

// Stats returns totals for source i.
func (e *Engine) Stats(i int) SourceStats {
	if i < 0 || i >= len(e.states) || e.states[i] == nil {
		return SourceStats{}
	}
	return e.states[i].stats
}

func (e *Engine) state(i int) *sourceState {
	for i >= len(e.states) {
		e.states = append(e.states, nil)
		e.fps = append(e.fps, source.DefaultRecordedFramerate)
	}
	if e.states[i] == nil {
		fps := e.fps[i]
		size := e.cfg.WindowSize
		if size <= 0 {
			size = int(math.Round(fps))
		}
		e.states[i] = &sourceState{
			interval: 1000 / fps,
			window:   NewWindow(size),
		}
	}
	return e.states[i]
}

func (e *Engine) processFrame(batch int, entry source.Entry) Sample {
	st := e.state(entry.SourceIndex)
	cur := entry.Frame
	s := Sample{SourceIndex: entry.SourceIndex, BatchIndex: batch}
	st.stats.Samples++

	if st.prev == nil {
		st.prev = cur
		st.elapsed = st.interval
		st.stats.Changes++
		return s
	}

	var rows []float64
	if sameSize(cur, st.prev) {
		rows = rowDifferences(cur, st.prev, e.cfg.PixelStep)
		s.Difference = frameDifference(rows)
		s.IsDuplicate = s.Difference < e.cfg.DuplicateThreshold
	} else {
		s.ResolutionChanged = true
		logging.WithFields(logging.Fields{
			"source": entry.SourceIndex,
			"batch":  batch,
			"from":   st.prev.Rect.Size(),
			"to":     cur.Rect.Size(),
		}).Warn("Resolution changed, treating frame as changed")
	}

	if s.IsDuplicate {
		st.elapsed += st.interval
		st.dupRun++
		st.stats.Duplicates++
	} else {
		s.FrametimeMs, s.HasFrametime = st.elapsed, true
		st.window.Push(st.elapsed)
		st.framerate = 1000 / st.window.Mean()
		st.warm = true
		st.elapsed = st.interval
		st.dupRun = 0
		st.stats.Changes++

		if e.cfg.EnableTears && rows != nil {
			s.TearOffset, s.TearDetected = detectTear(rows, e.cfg)
			if s.TearDetected {
				st.stats.Tears++
				logging.Debugf("Tear in source %d batch %d at %.3f", entry.SourceIndex, batch, s.TearOffset)
			}
		}
	}
	s.Framerate, s.HasFramerate = st.framerate, st.warm

	st.prev = cur
	return s
}
