// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Environment variables that take precedence over $PATH lookup.
	ffprobeEnv = "TEARSCOPE_FFPROBE"
	ffmpegEnv  = "TEARSCOPE_FFMPEG"
)

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, ffmpegEnv)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, ffprobeEnv)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	// First check for executable in case it's overridden via env variable.
	if overrideEnvVar != "" {
		if p := os.Getenv(overrideEnvVar); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	// Look for executable in $PATH.
	p, err := exec.LookPath(exeName)
	if err != nil {
		return "", err
	}
	return p, nil
}

// Make sure Ffprobe implements video.MetadataExtractor interface.
var _ video.MetadataExtractor = (*Ffprobe)(nil)

// Ffprobe extracts video metadata using ffprobe binary at Path.
type Ffprobe struct {
	Path string
	// Count frames by decoding the whole stream. Slower but exact, container
	// reported frame counts are not always present (e.g. mkv).
	CountFrames bool
}

// ExtractMetadata implements video.MetadataExtractor.
func (f *Ffprobe) ExtractMetadata(videoFile string) (video.Metadata, error) {
	return FfprobeExtractMetadata(videoFile, f.Path, f.CountFrames)
}

// FfprobeExtractMetadata will query video file metadata via ffprobe.
func FfprobeExtractMetadata(videoFile, ffprobePath string, countFrames bool) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-threads", "0",
		"-select_streams", "v:0",
		"-of", "json",
		"-show_format",
		"-show_streams",
	}
	if countFrames {
		ffprobeArgs = append(ffprobeArgs, "-count_frames")
	}
	ffprobeArgs = append(ffprobeArgs, videoFile)

	cmd := exec.Command(ffprobePath, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() exec error: %w", err)
	}

	vmeta, err = parseFfprobeOutput(out)
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() %s: %w", videoFile, err)
	}
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}

// parseFfprobeOutput unmarshals ffprobe JSON output into video.Metadata.
func parseFfprobeOutput(out []byte) (video.Metadata, error) {
	var vmeta video.Metadata

	// A temporary structures to unmarshal JSON from ffprobe output.
	type metadata struct {
		CodecName      string  `json:"codec_name,omitempty"`
		FrameRate      string  `json:"r_frame_rate,omitempty"`
		Duration       float64 `json:"duration,omitempty,string"`
		Width          int     `json:"width,omitempty"`
		Height         int     `json:"height,omitempty"`
		BitRate        int     `json:"bit_rate,omitempty,string"`
		FrameCount     int     `json:"nb_frames,omitempty,string"`
		ReadFrameCount int     `json:"nb_read_frames,omitempty,string"`
	}
	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []metadata
		Format  metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, errors.New("no video stream")
	}

	s := meta.Streams[0]
	vmeta = video.Metadata{
		CodecName:       s.CodecName,
		FrameRate:       s.FrameRate,
		Duration:        s.Duration,
		Width:           s.Width,
		Height:          s.Height,
		BitRate:         s.BitRate,
		FrameCount:      s.FrameCount,
		FrameCountExact: s.FrameCount > 0,
	}
	// Decoded frame count is authoritative when present.
	if s.ReadFrameCount > 0 {
		vmeta.FrameCount = s.ReadFrameCount
		vmeta.FrameCountExact = true
	}
	// For mkv container Streams does not contain duration, so we have to look into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)

	// Last resort: estimate frame count from duration and frame rate.
	if vmeta.FrameCount == 0 {
		if fps, err := vmeta.FPS(); err == nil {
			vmeta.FrameCount = int(math.Round(vmeta.Duration * fps))
		}
	}

	return vmeta, nil
}
