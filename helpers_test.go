// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable helpers and fixtures for tests.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"testing"
)

// Geometry of frames produced by fake ffmpeg.
const (
	fakeFrameWidth  = 8
	fakeFrameHeight = 4
)

// Fake ffprobe reports frame count stored as the content of the video file.
var fakeFfprobe = fmt.Sprintf(`#!/bin/sh
for last; do :; done
n=$(cat "$last")
printf '{"streams":[{"codec_name":"rawvideo","r_frame_rate":"60/1","width":%d,"height":%d,"nb_frames":"%%s"}],"format":{}}' "$n"
`, fakeFrameWidth, fakeFrameHeight)

// Fake ffmpeg emits as many random RGBA frames as the input file says.
var fakeFfmpeg = fmt.Sprintf(`#!/bin/sh
src=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-i" ]; then src="$2"; fi
	shift
done
n=$(cat "$src")
head -c $((n * %d)) /dev/urandom
`, fakeFrameWidth*fakeFrameHeight*4)

// fixFakeTools fixture puts fake ffmpeg and ffprobe first on PATH.
func fixFakeTools(t *testing.T) {
	t.Helper()
	fakePath := t.TempDir()
	for name, body := range map[string]string{"ffmpeg": fakeFfmpeg, "ffprobe": fakeFfprobe} {
		err := os.WriteFile(path.Join(fakePath, name), []byte(body), fs.FileMode(0o755))
		if err != nil {
			t.Fatalf("Unable to create fake %s: %v", name, err)
		}
	}
	// Make sure environment overrides do not take precedence over PATH.
	t.Setenv("TEARSCOPE_FFMPEG", "")
	t.Setenv("TEARSCOPE_FFPROBE", "")
	t.Setenv("PATH", fmt.Sprintf("%s:%s", fakePath, os.Getenv("PATH")))
}

// fixVideo fixture creates "video" file understood by fake tools.
func fixVideo(t *testing.T, name string, frames int) (fPath string) {
	t.Helper()
	fPath = path.Join(t.TempDir(), name)
	err := os.WriteFile(fPath, []byte(strconv.Itoa(frames)), fs.FileMode(0o644))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}

// fixConfigFile fixture writes application config file with given contents.
func fixConfigFile(t *testing.T, name, contents string) (fPath string) {
	t.Helper()
	fPath = path.Join(t.TempDir(), name)
	err := os.WriteFile(fPath, []byte(contents), fs.FileMode(0o600))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fPath
}
