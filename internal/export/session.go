// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPrefix      = "default_image_"
	DefaultImageFormat = "png"
	DefaultLogFileName = "metrics.csv"
)

// Supported image sequence formats.
var ImageFormats = []string{"png", "jpeg", "bmp", "tiff"}

// Session describes one export run.
type Session struct {
	ID             uuid.UUID
	OutputDir      string
	Prefix         string
	ImageFormat    string
	SequenceOffset int
	LogFileName    string
}

// NewSession creates Session with defaults writing into dir.
func NewSession(dir string) Session {
	return Session{
		ID:          uuid.New(),
		OutputDir:   dir,
		Prefix:      DefaultPrefix,
		ImageFormat: DefaultImageFormat,
		LogFileName: DefaultLogFileName,
	}
}

// ImagePath returns path of image with sequence number seq.
func (s Session) ImagePath(seq int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("%s%06d.%s", s.Prefix, seq, imageExt(s.ImageFormat)))
}

// LogPath returns path of metrics log.
func (s Session) LogPath() string {
	return filepath.Join(s.OutputDir, s.LogFileName)
}

// LastSequence returns the highest sequence number of session images already
// present in output directory. Missing directory has no images.
func (s Session) LastSequence() (last int, found bool, err error) {
	entries, err := os.ReadDir(s.OutputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	suffix := "." + imageExt(s.ImageFormat)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.Prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, s.Prefix), suffix)
		if digits == "" || strings.Trim(digits, "0123456789") != "" {
			continue
		}
		seq, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if !found || seq > last {
			last, found = seq, true
		}
	}
	return last, found, nil
}

// Verify checks session fields.
func (s Session) Verify() error {
	if s.OutputDir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidSession)
	}
	if s.LogFileName == "" || strings.ContainsRune(s.LogFileName, filepath.Separator) {
		return fmt.Errorf("%w: bad log file name %q", ErrInvalidSession, s.LogFileName)
	}
	if strings.ContainsRune(s.Prefix, filepath.Separator) {
		return fmt.Errorf("%w: bad image prefix %q", ErrInvalidSession, s.Prefix)
	}
	if s.SequenceOffset < 0 {
		return fmt.Errorf("%w: negative sequence offset %d", ErrInvalidSession, s.SequenceOffset)
	}
	if !isImageFormat(s.ImageFormat) {
		return fmt.Errorf("%w: unsupported image format %q", ErrInvalidSession, s.ImageFormat)
	}
	return nil
}

func isImageFormat(f string) bool {
	for _, v := range ImageFormats {
		if v == f {
			return true
		}
	}
	return false
}

func imageExt(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
