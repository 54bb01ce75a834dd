// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application version string related functionality.
//
// Version comes either from "ldflags" injection at build time or, for binaries
// installed via "go install", from debug.BuildInfo.

package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"time"
)

// Value injected during build with -ldflags="-X main.version={ver}".
var (
	version string
	vInfo   = newVersionInfo(version, readBuildInfo)
)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

// newVersionInfo collects version information, injected version takes
// precedence over module version.
func newVersionInfo(injected string, read func() (*debug.BuildInfo, bool)) versionInfo {
	v := versionInfo{version: injected, goVersion: runtime.Version()}

	bi, ok := read()
	if !ok {
		return v
	}
	if v.version == "" {
		v.version = bi.Main.Version
	}
	if bi.GoVersion != "" {
		v.goVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time, _ = time.Parse(time.RFC3339, s.Value)
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

// versionInfo is struct that includes relevant version information.
type versionInfo struct {
	time      time.Time
	version   string
	revision  string
	goVersion string
	modified  bool
}

func (v versionInfo) String() string {
	ver := v.version
	if ver == "" {
		ver = "(devel)"
	}
	if v.revision == "" {
		return ver
	}
	rev := v.revision
	if v.modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s %s", ver, rev)
}

// printVersion writes detailed version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tearscope %s\n", vInfo)
	if !vInfo.time.IsZero() {
		fmt.Fprintf(w, "built from commit of %s\n", vInfo.time.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "go: %s\n", vInfo.goVersion)
}
