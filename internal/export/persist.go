// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package export

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/evolution-gaming/tearscope/internal/vqm"
)

// Persister stores composed frames and metrics log rows.
type Persister interface {
	WriteImage(img image.Image, path string) error
	// AppendLogRows appends rows of one batch to the metrics log.
	AppendLogRows(rows []vqm.FrameMetric) error
	Close() error
}

// PersisterFunc creates Persister for a session.
type PersisterFunc func(s Session) (Persister, error)

// FilePersister writes images atomically (temporary file + rename) and appends
// metrics rows to a CSV log, flushing after every batch of rows.
type FilePersister struct {
	format string
	log    *os.File
	cw     *csv.Writer
	enc    *csvutil.Encoder
}

// NewFilePersister opens metrics log of session for append. Header is written
// only into an empty log.
func NewFilePersister(s Session) (Persister, error) {
	f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening metrics log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat metrics log: %w", err)
	}

	p := &FilePersister{format: s.ImageFormat, log: f, cw: csv.NewWriter(f)}
	p.enc = csvutil.NewEncoder(p.cw)
	if info.Size() == 0 {
		if err := p.enc.EncodeHeader(vqm.FrameMetric{}); err != nil {
			f.Close()
			return nil, fmt.Errorf("encoding metrics log header: %w", err)
		}
		if err := p.flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	p.enc.AutoHeader = false

	return p, nil
}

func (p *FilePersister) WriteImage(img image.Image, path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encodeImage(tmp, img, p.format); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding %s: %w", p.format, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (p *FilePersister) AppendLogRows(rows []vqm.FrameMetric) error {
	for _, row := range rows {
		if err := p.enc.Encode(row); err != nil {
			return fmt.Errorf("encoding metrics row: %w", err)
		}
	}
	return p.flush()
}

func (p *FilePersister) Close() error {
	ferr := p.flush()
	if err := p.log.Close(); err != nil {
		return err
	}
	return ferr
}

func (p *FilePersister) flush() error {
	p.cw.Flush()
	if err := p.cw.Error(); err != nil {
		return fmt.Errorf("writing metrics log: %w", err)
	}
	return nil
}

func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unsupported image format %q", format)
}
