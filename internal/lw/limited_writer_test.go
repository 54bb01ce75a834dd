// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lw_test

import (
	"bytes"
	"io"
	"testing"
	"testing/quick"

	"github.com/evolution-gaming/tearscope/internal/lw"
	"github.com/stretchr/testify/assert"
)

func TestLimitedWriterImplementsWriter(t *testing.T) {
	var _ io.Writer = &lw.LimitedWriter{}
}

func TestLimitedWriterProp(t *testing.T) {
	// How many iterations quick.Check should run.
	iterations := 1 * 1000
	qCfg := &quick.Config{MaxCount: iterations}

	t.Run("Data fitting the limit is written as is", func(t *testing.T) {
		fn := func(b []byte) bool {
			buf := &bytes.Buffer{}
			w := lw.LimitWriter(buf, uint(len(b)))
			n, err := w.Write(b)
			return err == nil && n == len(b) && bytes.Equal(b, buf.Bytes()) && !w.Truncated()
		}
		if err := quick.Check(fn, qCfg); err != nil {
			t.Error(err)
		}
	})

	t.Run("Never more than the limit reaches underlying writer", func(t *testing.T) {
		fn := func(b []byte, limit uint8) bool {
			buf := &bytes.Buffer{}
			w := lw.LimitWriter(buf, uint(limit))
			// Write twice to also cover limit reached across writes.
			n1, err1 := w.Write(b)
			n2, err2 := w.Write(b)
			if err1 != nil || err2 != nil || n1 != len(b) || n2 != len(b) {
				return false
			}
			total := 2 * len(b)
			written := buf.Len()
			return written <= int(limit) && int(w.Dropped()) == total-written
		}
		if err := quick.Check(fn, qCfg); err != nil {
			t.Error(err)
		}
	})
}

func TestLimitedWriterTruncation(t *testing.T) {
	buf := &bytes.Buffer{}
	w := lw.LimitWriter(buf, 5)

	n, err := w.Write([]byte("0123456789"))
	assert.NoError(t, err)
	assert.Equal(t, 10, n, "Writer should report full length consumed")
	assert.Equal(t, "01234", buf.String())
	assert.True(t, w.Truncated())
	assert.EqualValues(t, 5, w.Dropped())

	n, err = w.Write([]byte("abc"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "01234", buf.String())
	assert.EqualValues(t, 8, w.Dropped())
}
