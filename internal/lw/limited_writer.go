// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// A truncating LimitedWriter.
//
// Used to capture output of child processes (ffmpeg stderr) into memory without
// letting a chatty process grow the buffer without bounds. Unlike a failing writer
// it never returns an error for overflow: a child process blocked on a full stderr
// pipe would stall the decode, so excess bytes are counted and dropped instead.
package lw

import (
	"io"
)

type LimitedWriter struct {
	// Apply limits to this Writer
	W io.Writer
	// Remaining bytes allowed to reach W
	N uint
	// Bytes dropped after limit was reached
	dropped uint
}

// Write implements io.Writer for *LimitedWriter.
func (s *LimitedWriter) Write(b []byte) (int, error) {
	keep := b
	if uint(len(keep)) > s.N {
		keep = keep[:s.N]
	}
	s.dropped += uint(len(b) - len(keep))
	if len(keep) == 0 {
		return len(b), nil
	}
	n, err := s.W.Write(keep)
	s.N -= uint(n)
	if err != nil {
		return n, err
	}
	return len(b), nil
}

// Dropped reports how many bytes were discarded due to the limit.
func (s *LimitedWriter) Dropped() uint {
	return s.dropped
}

// Truncated reports if any output was discarded.
func (s *LimitedWriter) Truncated() bool {
	return s.dropped > 0
}

func LimitWriter(w io.Writer, n uint) *LimitedWriter {
	return &LimitedWriter{W: w, N: n}
}
