// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Decoder abstractions consumed by the frame pipeline.

package video

import (
	"errors"
	"fmt"
	"image"
)

// ErrZeroLength is reported for streams that contain no frames.
var ErrZeroLength = errors.New("zero-length video stream")

// Decoder opens video files for sequential frame reading.
type Decoder interface {
	Open(path string) (Stream, error)
}

// Stream is an opened, sequentially readable video.
//
// ReadFrame returns io.EOF once all frames have been delivered. Each returned
// frame is a fresh allocation owned by the caller.
type Stream interface {
	ReadFrame() (*image.RGBA, error)
	// Length is total frame count, 0 when unknown.
	Length() int
	// LengthExact reports if Length is a counted value rather than an
	// estimate from duration and frame rate.
	LengthExact() bool
	// Position is the count of frames delivered so far.
	Position() int
	Close() error
}

// SourceOpenError is returned when a source cannot be opened (invalid path,
// unsupported codec, zero-length stream).
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("open source %s: %s", e.Path, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}

// DecodeError is reported for mid-stream failures. Pipeline treats it as
// end-of-stream for the affected source.
type DecodeError struct {
	Path     string
	Position int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at frame %d: %s", e.Path, e.Position, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
