// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_newVersionInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.21.0",
		Main:      debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2022-05-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	read := func() (*debug.BuildInfo, bool) { return bi, true }

	tests := map[string]struct {
		injected string
		read     func() (*debug.BuildInfo, bool)
		want     string
	}{
		"From build info": {
			read: read,
			want: "v1.2.3 abc123-dirty",
		},
		"Injected version wins": {
			injected: "v9.9.9",
			read:     read,
			want:     "v9.9.9 abc123-dirty",
		},
		"No build info": {
			injected: "v0.1.0",
			read:     func() (*debug.BuildInfo, bool) { return nil, false },
			want:     "v0.1.0",
		},
		"Nothing known": {
			read: func() (*debug.BuildInfo, bool) { return nil, false },
			want: "(devel)",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := newVersionInfo(tc.injected, tc.read)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func Test_printVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "tearscope ")
	assert.Contains(t, buf.String(), "go: ")
}
