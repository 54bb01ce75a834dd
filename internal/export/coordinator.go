// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Export of composed image sequence and metrics log, driven one batch at a
// time.

package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/evolution-gaming/tearscope/internal/compose"
	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/source"
	"github.com/evolution-gaming/tearscope/internal/vqm"
)

var (
	ErrInvalidSession   = errors.New("invalid export session")
	ErrNotExporting     = errors.New("not exporting")
	ErrAlreadyExporting = errors.New("already exporting")
	ErrNoActiveSources  = errors.New("no active sources")
)

// WriteError is a failure to persist export output.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type State int

const (
	Idle State = iota
	Exporting
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Exporting:
		return "exporting"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the outcome of one RunOnce iteration.
type Status int

const (
	StatusNone Status = iota
	StatusContinue
	StatusSourcesExhausted
	StatusWriteFailure
	StatusCancelled
	// StatusCompositionFailure means the batch was skipped. The batch is
	// consumed and metrics engine state has advanced past it, so the next
	// RunOnce continues with the following batch.
	StatusCompositionFailure
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusContinue:
		return "continue"
	case StatusSourcesExhausted:
		return "sources exhausted"
	case StatusWriteFailure:
		return "write failure"
	case StatusCancelled:
		return "cancelled"
	case StatusCompositionFailure:
		return "composition failure"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// BatchSource is the frame supplier, implemented by source.Set.
type BatchSource interface {
	ReadNextBatch() source.Batch
	Len() int
	Active() int
	Done() bool
	ShortestProgress() float64
	RecordedFramerates() []float64
	Paths() []string
}

// Processor derives metric samples, implemented by vqm.Engine.
type Processor interface {
	Reset(recordedFramerates []float64)
	Process(b source.Batch) []vqm.Sample
}

// Progress is reported by Drive after each successful iteration.
type Progress struct {
	Batch    int
	Sequence int
	Shortest float64
}

type Option func(*Coordinator)

// WithPersisterFunc replaces default NewFilePersister.
func WithPersisterFunc(f PersisterFunc) Option {
	return func(c *Coordinator) {
		c.newPersister = f
	}
}

// Coordinator drives the export pipeline. Apart from Cancel it must be used
// from a single goroutine.
type Coordinator struct {
	src          BatchSource
	eng          Processor
	sink         compose.Sink
	newPersister PersisterFunc

	state     State
	cancelled atomic.Bool
	session   Session
	persister Persister
	names     []string
	rows      []int
	sequence  int
	batches   int
}

func NewCoordinator(src BatchSource, eng Processor, sink compose.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		src:          src,
		eng:          eng,
		sink:         sink,
		newPersister: NewFilePersister,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins export session s.
func (c *Coordinator) Start(s Session) error {
	if c.state == Exporting {
		return ErrAlreadyExporting
	}
	if err := s.Verify(); err != nil {
		return err
	}
	if c.src.Active() == 0 || c.src.Done() {
		return ErrNoActiveSources
	}
	if err := checkWritableDir(s.OutputDir); err != nil {
		return &WriteError{Path: s.OutputDir, Err: err}
	}
	p, err := c.newPersister(s)
	if err != nil {
		return &WriteError{Path: s.LogPath(), Err: err}
	}

	c.session = s
	c.persister = p
	c.names = make([]string, c.src.Len())
	for i, path := range c.src.Paths() {
		c.names[i] = filepath.Base(path)
	}
	c.rows = make([]int, c.src.Len())
	c.sequence = s.SequenceOffset
	c.batches = 0
	c.cancelled.Store(false)
	c.eng.Reset(c.src.RecordedFramerates())
	c.state = Exporting

	logging.WithFields(logging.Fields{"session": s.ID, "dir": s.OutputDir}).Info("Export started")
	return nil
}

// RunOnce performs one pipeline iteration.
func (c *Coordinator) RunOnce() (Status, error) {
	if c.state != Exporting {
		return StatusNone, ErrNotExporting
	}
	if c.cancelled.Load() {
		c.abort()
		return StatusCancelled, nil
	}
	if c.src.Done() {
		return c.exhausted()
	}

	batch := c.src.ReadNextBatch()
	if batch.Empty() {
		return c.exhausted()
	}
	samples := c.eng.Process(batch)

	items := make([]compose.Item, len(batch.Entries))
	for i, e := range batch.Entries {
		items[i] = compose.Item{Label: c.name(e.SourceIndex), Frame: e.Frame, Sample: samples[i]}
	}
	img, err := c.sink.Compose(items)
	if err != nil {
		logging.Warnf("Skipping batch %d: %v", batch.Index, err)
		return StatusCompositionFailure, fmt.Errorf("batch %d: %w", batch.Index, err)
	}

	path := c.session.ImagePath(c.sequence)
	if err := c.persister.WriteImage(img, path); err != nil {
		return c.writeFailure(&WriteError{Path: path, Err: err})
	}
	rows := make([]vqm.FrameMetric, len(samples))
	for i, s := range samples {
		rows[i] = vqm.NewFrameMetric(c.name(s.SourceIndex), s)
	}
	if err := c.persister.AppendLogRows(rows); err != nil {
		// Image without its log rows is not part of the output.
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			logging.Warnf("Removing %s after metrics log failure: %v", path, rerr)
		}
		return c.writeFailure(&WriteError{Path: c.session.LogPath(), Err: err})
	}
	for _, s := range samples {
		c.rows[s.SourceIndex]++
	}
	c.sequence++
	c.batches++
	logging.Debugf("Batch %d exported to %s", batch.Index, path)

	if c.src.Done() {
		return c.exhausted()
	}
	return StatusContinue, nil
}

// Drive calls RunOnce until an iteration reports anything but StatusContinue.
// Cancellation of ctx is observed between iterations.
func (c *Coordinator) Drive(ctx context.Context, onProgress func(Progress)) (Status, error) {
	for {
		if ctx.Err() != nil {
			c.Cancel()
		}
		status, err := c.RunOnce()
		if status != StatusContinue {
			return status, err
		}
		if onProgress != nil {
			onProgress(c.Progress())
		}
	}
}

// Cancel requests cancellation, observed at the next RunOnce. Safe for
// concurrent use.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// Finish closes the session, safe to call repeatedly.
func (c *Coordinator) Finish() error {
	if c.state == Finished {
		return nil
	}
	var err error
	if c.state == Exporting {
		err = c.closePersister()
		logging.WithFields(logging.Fields{"session": c.session.ID, "batches": c.batches}).Info("Export finished")
	}
	c.state = Finished
	return err
}

func (c *Coordinator) IsExporting() bool {
	return c.state == Exporting
}

func (c *Coordinator) State() State {
	return c.state
}

func (c *Coordinator) Session() Session {
	return c.session
}

// Rows returns count of log rows written for source i.
func (c *Coordinator) Rows(i int) int {
	if i < 0 || i >= len(c.rows) {
		return 0
	}
	return c.rows[i]
}

// Sequence returns the next image sequence number.
func (c *Coordinator) Sequence() int {
	return c.sequence
}

// Batches returns count of persisted batches.
func (c *Coordinator) Batches() int {
	return c.batches
}

func (c *Coordinator) Progress() Progress {
	return Progress{Batch: c.batches, Sequence: c.sequence, Shortest: c.src.ShortestProgress()}
}

func (c *Coordinator) name(i int) string {
	if i < len(c.names) {
		return c.names[i]
	}
	return fmt.Sprintf("source%d", i)
}

func (c *Coordinator) exhausted() (Status, error) {
	if err := c.Finish(); err != nil {
		return StatusWriteFailure, &WriteError{Path: c.session.LogPath(), Err: err}
	}
	return StatusSourcesExhausted, nil
}

func (c *Coordinator) writeFailure(err error) (Status, error) {
	if ferr := c.Finish(); ferr != nil {
		logging.Warnf("Closing metrics log after write failure: %v", ferr)
	}
	return StatusWriteFailure, err
}

func (c *Coordinator) abort() {
	if err := c.closePersister(); err != nil {
		logging.Warnf("Closing metrics log on cancel: %v", err)
	}
	c.cancelled.Store(false)
	c.state = Idle
	logging.WithFields(logging.Fields{"session": c.session.ID, "batches": c.batches}).Info("Export cancelled")
}

func (c *Coordinator) closePersister() error {
	if c.persister == nil {
		return nil
	}
	err := c.persister.Close()
	c.persister = nil
	return err
}

// checkWritableDir creates dir and checks a file can be created in it.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
