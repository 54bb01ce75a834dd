// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video metadata related constructs.

package video

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName  string  `json:"codec_name,omitempty"`
	FrameRate  string  `json:"r_frame_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty,string"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty,string"`
	FrameCount int     `json:"nb_frames,omitempty,string"`
	// FrameCountExact is false when FrameCount is estimated from duration.
	FrameCountExact bool `json:"-"`
}

// FPS parses FrameRate fraction (as reported by ffprobe, e.g. "60000/1001").
func (m Metadata) FPS() (float64, error) {
	return ParseFraction(m.FrameRate)
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(videoFile string) (Metadata, error)
}

// ParseFraction parses "num/den" or plain decimal string into float64.
func ParseFraction(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing fraction %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing fraction %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parsing fraction %q: zero denominator", s)
	}
	return n / d, nil
}
