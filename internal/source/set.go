// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Synchronized, lock-step frame acquisition from multiple video sources.

package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/video"
)

// DefaultRecordedFramerate is assumed when a source does not declare one.
const DefaultRecordedFramerate = 60.0

// Spec describes a source to open.
type Spec struct {
	Path string
	// RecordedFramerate is user declared capture rate (not measured).
	RecordedFramerate float64
}

// Source is a single opened video.
type Source struct {
	path              string
	recordedFramerate float64
	stream            video.Stream
	exhausted         bool
	// Non-nil if source was degraded due to open or decode failure.
	err error
}

// Path returns source path.
func (s *Source) Path() string { return s.path }

// RecordedFramerate returns declared capture framerate.
func (s *Source) RecordedFramerate() float64 { return s.recordedFramerate }

// Exhausted reports if source will deliver no more frames.
func (s *Source) Exhausted() bool { return s.exhausted }

// Err returns the failure that degraded this source, nil for natural end.
func (s *Source) Err() error { return s.err }

// Failed reports if source was degraded because of an error.
func (s *Source) Failed() bool { return s.err != nil }

// Progress returns decoded-position / total-length in [0,1]. Only an
// exhausted source reports 1, an underestimated length never does.
func (s *Source) Progress() float64 {
	if s.exhausted {
		return 1
	}
	if s.stream == nil || s.stream.Length() <= 0 {
		return 0
	}
	return math.Min(pendingProgressLimit, float64(s.stream.Position())/float64(s.stream.Length()))
}

// Largest progress of a source that has not ended yet.
var pendingProgressLimit = math.Nextafter(1, 0)

// Entry is a single source frame in a Batch.
type Entry struct {
	SourceIndex int
	Frame       *image.RGBA
}

// Batch is a synchronized snapshot of frames, one per still-active source.
type Batch struct {
	Index   int
	Entries []Entry
}

// Empty reports if batch holds no frames.
func (b Batch) Empty() bool {
	return len(b.Entries) == 0
}

// Set owns N independently decoded video streams and reads them in lock-step.
//
// Set is not safe for concurrent use, calls must be strictly sequential.
type Set struct {
	decoder   video.Decoder
	sources   []*Source
	nextIndex int
}

// NewSet creates empty Set that opens videos with given decoder.
func NewSet(dec video.Decoder) *Set {
	return &Set{decoder: dec}
}

// Open replaces current sources with given ones.
//
// Failure to open a source is not fatal: the source is recorded as exhausted
// and the remaining ones are opened. Returned error joins all per-source
// failures.
func (s *Set) Open(specs []Spec) error {
	if err := s.Close(); err != nil {
		logging.Warnf("Closing previous sources: %s", err)
	}
	s.sources = make([]*Source, len(specs))
	s.nextIndex = 0

	var errs []error
	for i, spec := range specs {
		fps := spec.RecordedFramerate
		if fps <= 0 {
			fps = DefaultRecordedFramerate
		}
		src := &Source{path: spec.Path, recordedFramerate: fps}
		s.sources[i] = src

		stream, err := s.decoder.Open(spec.Path)
		if err != nil {
			var openErr *video.SourceOpenError
			if !errors.As(err, &openErr) {
				err = &video.SourceOpenError{Path: spec.Path, Err: err}
			}
			src.err = err
			src.exhausted = true
			logging.WithFields(logging.Fields{"source": i}).Warnf("Source unavailable: %s", err)
			errs = append(errs, err)
			continue
		}
		src.stream = stream
		logging.Debugf("Opened source %d: %s (%d frames, recorded at %.2f fps)", i, spec.Path, stream.Length(), fps)
	}

	return errors.Join(errs...)
}

// ReadNextBatch reads one frame from every active source.
//
// Sources reaching end-of-stream are marked exhausted and omitted. Decode
// errors degrade the affected source to exhausted. When no active sources
// remain an empty batch is returned.
func (s *Set) ReadNextBatch() Batch {
	b := Batch{Index: s.nextIndex}
	for i, src := range s.sources {
		if src.exhausted {
			continue
		}
		frame, err := src.stream.ReadFrame()
		if err != nil {
			s.retire(i, err)
			continue
		}
		b.Entries = append(b.Entries, Entry{SourceIndex: i, Frame: frame})
		// Exact length reached, no need to hit EOF on next read. Estimated
		// lengths are only a progress hint, such sources end on EOF.
		if l := src.stream.Length(); l > 0 && src.stream.LengthExact() && src.stream.Position() >= l {
			s.retire(i, io.EOF)
		}
	}
	if !b.Empty() {
		s.nextIndex++
	}
	return b
}

// retire marks source exhausted, recording err unless it is a clean end.
func (s *Set) retire(i int, err error) {
	src := s.sources[i]
	src.exhausted = true
	if !errors.Is(err, io.EOF) {
		var decErr *video.DecodeError
		if !errors.As(err, &decErr) {
			err = &video.DecodeError{Path: src.path, Position: src.stream.Position(), Err: err}
		}
		src.err = err
		logging.WithFields(logging.Fields{"source": i}).Warnf("Source degraded to end-of-stream: %s", err)
	}
	if cerr := src.stream.Close(); cerr != nil {
		logging.Warnf("Closing source %d: %s", i, cerr)
	}
}

// Len returns number of sources including failed ones.
func (s *Set) Len() int {
	return len(s.sources)
}

// Source returns i-th source.
func (s *Set) Source(i int) *Source {
	return s.sources[i]
}

// Active returns count of sources that still deliver frames.
func (s *Set) Active() int {
	n := 0
	for _, src := range s.sources {
		if !src.exhausted {
			n++
		}
	}
	return n
}

// Progress returns progress of i-th source.
func (s *Set) Progress(i int) float64 {
	return s.sources[i].Progress()
}

// ShortestProgress returns progress of the shortest healthy source, failed
// sources are ignored. Sources are read in lock-step, so it is 1 as soon as
// any healthy source reached its natural end, otherwise the largest progress
// among healthy sources. It is the canonical termination signal. When no
// healthy source exists it is 1.
func (s *Set) ShortestProgress() float64 {
	shortest := 0.0
	healthy := false
	for _, src := range s.sources {
		if src.Failed() {
			continue
		}
		healthy = true
		if src.exhausted {
			return 1
		}
		shortest = math.Max(shortest, src.Progress())
	}
	if !healthy {
		return 1
	}
	return shortest
}

// Done reports that the run should terminate.
func (s *Set) Done() bool {
	return s.ShortestProgress() >= 1
}

// RecordedFramerates returns declared framerates indexed by source.
func (s *Set) RecordedFramerates() []float64 {
	fps := make([]float64, len(s.sources))
	for i, src := range s.sources {
		fps[i] = src.recordedFramerate
	}
	return fps
}

// Paths returns source paths indexed by source.
func (s *Set) Paths() []string {
	paths := make([]string, len(s.sources))
	for i, src := range s.sources {
		paths[i] = src.path
	}
	return paths
}

// Close closes all still open streams.
func (s *Set) Close() error {
	var errs []error
	for i, src := range s.sources {
		if src.stream == nil || src.exhausted {
			continue
		}
		src.exhausted = true
		if err := src.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
