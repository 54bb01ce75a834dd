// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of per-source summary metrics.

package metric

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jszwec/csvutil"

	"github.com/evolution-gaming/tearscope/internal/vqm"
)

var ErrRecordNotFound = errors.New("record not found")

type ID int64

type Store struct {
	mu      sync.RWMutex
	records map[ID]Record
	next    ID
}

func NewStore() *Store {
	return &Store{
		records: make(map[ID]Record),
	}
}

func (s *Store) Insert(r Record) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = r
	id := s.next
	s.next++

	return id
}

func (s *Store) Get(id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return r, fmt.Errorf("getting record: %w", ErrRecordNotFound)
	}

	return r, nil
}

func (s *Store) Exists(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.records[id]

	return exists
}

// GetIDs returns IDs in insertion order.
func (s *Store) GetIDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Update(id ID, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("updating record: %w", ErrRecordNotFound)
	}

	s.records[id] = r
	return nil
}

func (s *Store) Delete(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("deleting record: %w", ErrRecordNotFound)
	}

	delete(s.records, id)
	return nil
}

// Records returns all records ordered by source index.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SourceIndex < out[j].SourceIndex })
	return out
}

// WriteCSV writes all records as CSV report.
func (s *Store) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	records := s.Records()
	if len(records) == 0 {
		if err := enc.EncodeHeader(Record{}); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
	} else if err := enc.Encode(records); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Record contains summary metrics of a single source.
type Record struct {
	Session           string  `csv:"session"`
	Name              string  `csv:"name"`
	SourceIndex       int     `csv:"source_index"`
	SourceFile        string  `csv:"source_file"`
	RecordedFramerate float64 `csv:"recorded_fps"`
	Frames            int     `csv:"frames"`
	Duplicates        int     `csv:"duplicates"`
	Tears             int     `csv:"tears"`
	DuplicateRatio    float64 `csv:"duplicate_ratio"`
	SourceError       string  `csv:"source_error,omitempty"`

	FramerateMin          float64 `csv:"framerate_min"`
	FramerateMax          float64 `csv:"framerate_max"`
	FramerateMean         float64 `csv:"framerate_mean"`
	FramerateHarmonicMean float64 `csv:"framerate_harmonic_mean"`
	FramerateStDev        float64 `csv:"framerate_stdev"`
	FramerateVariance     float64 `csv:"framerate_variance"`

	FrametimeMin      float64 `csv:"frametime_min"`
	FrametimeMax      float64 `csv:"frametime_max"`
	FrametimeMean     float64 `csv:"frametime_mean"`
	FrametimeStDev    float64 `csv:"frametime_stdev"`
	FrametimeVariance float64 `csv:"frametime_variance"`
	FrametimeP95      float64 `csv:"frametime_p95"`
	FrametimeP99      float64 `csv:"frametime_p99"`
}

// SetAggregate copies aggregated metrics into record.
func (r *Record) SetAggregate(am vqm.AggregateMetric) {
	r.Frames = am.Frames
	r.Duplicates = am.Duplicates
	r.Tears = am.Tears
	if am.Frames > 0 {
		r.DuplicateRatio = float64(am.Duplicates) / float64(am.Frames)
	}

	r.FramerateMin = am.Framerate.Min
	r.FramerateMax = am.Framerate.Max
	r.FramerateMean = am.Framerate.Mean
	r.FramerateHarmonicMean = am.Framerate.HarmonicMean
	r.FramerateStDev = am.Framerate.StDev
	r.FramerateVariance = am.Framerate.Variance

	r.FrametimeMin = am.Frametime.Min
	r.FrametimeMax = am.Frametime.Max
	r.FrametimeMean = am.Frametime.Mean
	r.FrametimeStDev = am.Frametime.StDev
	r.FrametimeVariance = am.Frametime.Variance
	r.FrametimeP95 = am.Frametime.P95
	r.FrametimeP99 = am.Frametime.P99
}
