// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/evolution-gaming/tearscope/internal/logging"
)

type globalFlags struct {
	ConfFile string
	Debug    bool
	LogJSON  bool
}

func (g *globalFlags) Register(fs *flag.FlagSet) {
	fs.BoolVar(&g.Debug, "debug", false, "Enable debug logging (optional)")
	fs.BoolVar(&g.LogJSON, "log-json", false, "Log in JSON format (optional)")
	fs.StringVar(&g.ConfFile, "conf", "", "Application configuration file path, JSON or YAML (optional)")
}

// Apply configures logging according to flags.
func (g *globalFlags) Apply() {
	if g.LogJSON {
		logging.UseJSONFormat()
	}
	if g.Debug {
		logging.EnableDebugLogger()
	}
}
