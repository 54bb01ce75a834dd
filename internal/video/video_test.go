// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package video

import (
	"errors"
	"io"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProbe implements MetadataExtractor with canned response.
type fakeProbe struct {
	meta Metadata
	err  error
}

func (f *fakeProbe) ExtractMetadata(string) (Metadata, error) {
	return f.meta, f.err
}

// fixScript writes executable shell script, standing in for ffmpeg.
func fixScript(t *testing.T, body string) string {
	p := path.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

// fixSourceFile creates an existing (content irrelevant) source file.
func fixSourceFile(t *testing.T) string {
	p := path.Join(t.TempDir(), "capture.mp4")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func TestParseFraction(t *testing.T) {
	tests := map[string]struct {
		given   string
		want    float64
		wantErr bool
	}{
		"integer fraction": {given: "60/1", want: 60},
		"ntsc":             {given: "30000/1001", want: 30000.0 / 1001.0},
		"plain decimal":    {given: "59.94", want: 59.94},
		"zero denominator": {given: "1/0", wantErr: true},
		"garbage":          {given: "abc", wantErr: true},
		"empty":            {given: "", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFraction(tc.given)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestFfmpegDecoder_Args(t *testing.T) {
	d := &FfmpegDecoder{}

	t.Run("Default template", func(t *testing.T) {
		got, err := d.Args("/videos/my capture's.mp4")
		require.NoError(t, err)
		assert.Contains(t, got, "/videos/my capture's.mp4", "Path should survive quoting as single argument")
		assert.Equal(t, "-", got[len(got)-1])
		assert.Contains(t, got, "rgba")
	})

	t.Run("Custom template", func(t *testing.T) {
		d := &FfmpegDecoder{Template: "-i {{.SourceFile}} -f rawvideo -pix_fmt rgba -vf scale=640:-1 -"}
		got, err := d.Args("in.mp4")
		require.NoError(t, err)
		assert.Equal(t, []string{"-i", "in.mp4", "-f", "rawvideo", "-pix_fmt", "rgba", "-vf", "scale=640:-1", "-"}, got)
	})

	t.Run("Broken template", func(t *testing.T) {
		d := &FfmpegDecoder{Template: "-i {{.SourceFile"}
		_, err := d.Args("in.mp4")
		assert.Error(t, err)
	})
}

func TestFfmpegDecoder_Open_Negative(t *testing.T) {
	src := fixSourceFile(t)
	validMeta := Metadata{Width: 2, Height: 2, FrameCount: 3}

	tests := map[string]struct {
		path    string
		probe   *fakeProbe
		wantErr error
	}{
		"Missing file": {
			path:    "/non/existent/video.mp4",
			probe:   &fakeProbe{meta: validMeta},
			wantErr: os.ErrNotExist,
		},
		"Probe failure": {
			path:    src,
			probe:   &fakeProbe{err: errors.New("unsupported codec")},
			wantErr: nil,
		},
		"Zero size": {
			path:  src,
			probe: &fakeProbe{meta: Metadata{FrameCount: 3}},
		},
		"Zero length": {
			path:    src,
			probe:   &fakeProbe{meta: Metadata{Width: 2, Height: 2}},
			wantErr: ErrZeroLength,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d := &FfmpegDecoder{FfmpegPath: "ffmpeg", Probe: tc.probe}
			s, err := d.Open(tc.path)
			assert.Nil(t, s)
			var openErr *SourceOpenError
			require.ErrorAs(t, err, &openErr)
			assert.Equal(t, tc.path, openErr.Path)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestFfmpegDecoder_ReadFrames(t *testing.T) {
	src := fixSourceFile(t)
	// 2x2 RGBA frame is 16 bytes.
	probe := &fakeProbe{meta: Metadata{Width: 2, Height: 2, FrameCount: 2, FrameCountExact: true}}

	t.Run("Should deliver all frames then EOF", func(t *testing.T) {
		d := &FfmpegDecoder{FfmpegPath: fixScript(t, "head -c 32 /dev/zero"), Probe: probe}
		s, err := d.Open(src)
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, 2, s.Length())
		assert.True(t, s.LengthExact())
		for i := 1; i <= 2; i++ {
			f, err := s.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, 2, f.Rect.Dx())
			assert.Equal(t, 2, f.Rect.Dy())
			assert.Equal(t, i, s.Position())
		}
		_, err = s.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
		// Subsequent reads keep reporting EOF.
		_, err = s.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Estimated length is not exact", func(t *testing.T) {
		estimated := &fakeProbe{meta: Metadata{Width: 2, Height: 2, FrameCount: 1}}
		d := &FfmpegDecoder{FfmpegPath: fixScript(t, "head -c 32 /dev/zero"), Probe: estimated}
		s, err := d.Open(src)
		require.NoError(t, err)
		defer s.Close()

		assert.False(t, s.LengthExact())
		// Frames beyond the estimate are still delivered.
		for i := 0; i < 2; i++ {
			_, err := s.ReadFrame()
			require.NoError(t, err)
		}
		_, err = s.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Truncated frame is a DecodeError", func(t *testing.T) {
		d := &FfmpegDecoder{FfmpegPath: fixScript(t, "head -c 20 /dev/zero"), Probe: probe}
		s, err := d.Open(src)
		require.NoError(t, err)
		defer s.Close()

		_, err = s.ReadFrame()
		require.NoError(t, err)
		_, err = s.ReadFrame()
		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, 1, decErr.Position)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("Failing ffmpeg is a DecodeError", func(t *testing.T) {
		d := &FfmpegDecoder{FfmpegPath: fixScript(t, "echo boom >&2; exit 3"), Probe: probe}
		s, err := d.Open(src)
		require.NoError(t, err)
		defer s.Close()

		_, err = s.ReadFrame()
		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("Close stops running process", func(t *testing.T) {
		d := &FfmpegDecoder{FfmpegPath: fixScript(t, "exec cat /dev/zero"), Probe: probe}
		s, err := d.Open(src)
		require.NoError(t, err)

		_, err = s.ReadFrame()
		require.NoError(t, err)
		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close(), "Close should be idempotent")
	})
}
