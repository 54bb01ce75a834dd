// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Decoder implementation that streams raw RGBA frames out of an ffmpeg child
// process.

package video

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/template"

	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/lw"
	"github.com/google/shlex"
)

// DefaultFfmpegDecodeTemplate produces packed RGBA frames on stdout.
var DefaultFfmpegDecodeTemplate = "-hide_banner -loglevel error -nostdin " +
	"-i {{.SourceFile}} -map 0:v:0 -f rawvideo -pix_fmt rgba -"

// Limit for captured ffmpeg stderr.
const stderrBufferSize = 64 * 1024

// Make sure FfmpegDecoder implements Decoder interface.
var _ Decoder = (*FfmpegDecoder)(nil)

// FfmpegDecoder opens videos via ffmpeg, frame geometry is discovered with Probe.
type FfmpegDecoder struct {
	// Path to ffmpeg executable
	FfmpegPath string
	// Decode command template, see DefaultFfmpegDecodeTemplate
	Template string
	// Metadata source (ffprobe)
	Probe MetadataExtractor
}

// Args renders decode command arguments for given source file.
func (d *FfmpegDecoder) Args(sourceFile string) ([]string, error) {
	tplText := d.Template
	if tplText == "" {
		tplText = DefaultFfmpegDecodeTemplate
	}
	tpl, err := template.New("ffmpeg").Parse(tplText)
	if err != nil {
		return nil, fmt.Errorf("parse decode template: %w", err)
	}
	// Template requires a struct with exported fields. Quote the path so that
	// shlex keeps paths with spaces intact.
	tplContext := struct {
		SourceFile string
	}{
		SourceFile: shellQuote(sourceFile),
	}
	var cmd strings.Builder
	if err := tpl.Execute(&cmd, tplContext); err != nil {
		return nil, fmt.Errorf("execute decode template: %w", err)
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("prepare decode command: %w", err)
	}
	return args, nil
}

// Open implements Decoder.
func (d *FfmpegDecoder) Open(path string) (Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &SourceOpenError{Path: path, Err: err}
	}
	meta, err := d.Probe.ExtractMetadata(path)
	if err != nil {
		return nil, &SourceOpenError{Path: path, Err: err}
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, &SourceOpenError{
			Path: path,
			Err:  fmt.Errorf("invalid frame size %dx%d (codec %q)", meta.Width, meta.Height, meta.CodecName),
		}
	}
	if meta.FrameCount <= 0 {
		return nil, &SourceOpenError{Path: path, Err: ErrZeroLength}
	}

	args, err := d.Args(path)
	if err != nil {
		return nil, &SourceOpenError{Path: path, Err: err}
	}

	s := &ffmpegStream{
		path:   path,
		meta:   meta,
		stderr: lw.LimitWriter(&bytes.Buffer{}, stderrBufferSize),
	}
	s.cmd = exec.Command(d.FfmpegPath, args...) //#nosec G204
	s.cmd.Stderr = s.stderr
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, &SourceOpenError{Path: path, Err: err}
	}
	logging.Debugf("Decoder command: %v", s.cmd.Args)
	if err := s.cmd.Start(); err != nil {
		return nil, &SourceOpenError{Path: path, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}
	s.out = bufio.NewReaderSize(stdout, 4*meta.Width*meta.Height)

	return s, nil
}

// ffmpegStream implements Stream for running ffmpeg process.
type ffmpegStream struct {
	path     string
	meta     Metadata
	cmd      *exec.Cmd
	out      *bufio.Reader
	stderr   *lw.LimitedWriter
	position int
	done     bool
}

func (s *ffmpegStream) ReadFrame() (*image.RGBA, error) {
	if s.done {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, s.meta.Width, s.meta.Height))
	_, err := io.ReadFull(s.out, img.Pix)
	switch {
	case err == nil:
		s.position++
		return img, nil
	case errors.Is(err, io.EOF):
		// Clean end of stream, but ffmpeg itself may have failed.
		s.done = true
		if werr := s.wait(); werr != nil {
			return nil, &DecodeError{Path: s.path, Position: s.position, Err: werr}
		}
		return nil, io.EOF
	default:
		s.done = true
		werr := s.wait()
		return nil, &DecodeError{Path: s.path, Position: s.position, Err: errors.Join(err, werr)}
	}
}

func (s *ffmpegStream) Length() int {
	return s.meta.FrameCount
}

func (s *ffmpegStream) LengthExact() bool {
	return s.meta.FrameCountExact
}

func (s *ffmpegStream) Position() int {
	return s.position
}

// Close terminates ffmpeg if it is still running.
func (s *ffmpegStream) Close() error {
	if s.cmd.ProcessState != nil {
		return nil
	}
	s.done = true
	_ = s.cmd.Process.Kill()
	// Killed process always reports an error, it is of no interest here.
	_ = s.cmd.Wait()
	return nil
}

func (s *ffmpegStream) wait() error {
	if err := s.cmd.Wait(); err != nil {
		buf := s.stderr.W.(*bytes.Buffer)
		logging.Debugf("ffmpeg stderr for %s:\n%s", s.path, buf.Bytes())
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(buf.String()))
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
