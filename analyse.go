// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// tearscope tool's analysis stage and plot subcommand implementation.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/evolution-gaming/tearscope/internal/analysis"
	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/vqm"
)

const comparisonPlotFile = "comparison.png"

// Make sure PlotApp implements Commander interface.
var _ Commander = (*PlotApp)(nil)

// PlotApp is plot subcommand context that implements Commander interface.
type PlotApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	gf globalFlags
	// Metrics log produced by run subcommand
	flLog string
	// Output directory for plots
	flOutDir string
}

// CreatePlotCommand will create Commander instance from PlotApp.
func CreatePlotCommand() *PlotApp {
	longHelp := `Subcommand "plot" will create framerate and frametime plots from metrics log
written by "run" subcommand. Both -log and -out-dir flags are mandatory.

Examples:

  tearscope plot -log out/metrics.csv -out-dir plots`

	app := &PlotApp{
		fs: flag.NewFlagSet("plot", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flLog, "log", "", "Metrics log file (output from run stage)")
	app.fs.StringVar(&app.flOutDir, "out-dir", "", "Output directory to store plots")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *PlotApp) Name() string {
	return a.fs.Name()
}

func (a *PlotApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *PlotApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}
	a.gf.Apply()

	// If after flag parsing log file is not defined - error out.
	if a.flLog == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -log is missing",
		}
	}

	// If after flag parsing output directory is not defined - error out.
	if a.flOutDir == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -out-dir is missing",
		}
	}

	// Log file should exist.
	if _, err := os.Stat(a.flLog); err != nil {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("metrics log does not exist? %s", err),
		}
	}

	return nil
}

func (a *PlotApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	logging.Debugf("Metrics log %s", a.flLog)
	fm, err := readMetricsLog(a.flLog)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if len(fm) == 0 {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("no rows in metrics log %s", a.flLog)}
	}

	if err := os.MkdirAll(a.flOutDir, os.FileMode(0o755)); err != nil {
		return &AppError{
			msg:      fmt.Sprintf("failed creating directory: %s", err),
			exitCode: 1,
		}
	}

	if err := plotSources(fm.BySource(), a.flOutDir); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	return nil
}

// readMetricsLog reads all rows of metrics log file.
func readMetricsLog(logFile string) (vqm.FrameMetrics, error) {
	fd, err := os.Open(logFile)
	if err != nil {
		return nil, fmt.Errorf("opening metrics log: %w", err)
	}
	defer fd.Close()

	var fm vqm.FrameMetrics
	if err := fm.FromCSV(fd); err != nil {
		return nil, fmt.Errorf("failed converting to FrameMetrics: %w", err)
	}
	return fm, nil
}

// plotSources creates per source multi-plot and cross source comparison plot
// in outDir.
//
// Sources without frametime values are skipped.
func plotSources(groups map[int]vqm.FrameMetrics, outDir string) error {
	indices := make([]int, 0, len(groups))
	for i := range groups {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	compared := make([]vqm.FrameMetrics, 0, len(indices))
	for _, i := range indices {
		fm := groups[i]
		if len(fm) == 0 {
			logging.Infof("Skip plots for source %d, no rows", i)
			continue
		}
		base := plotBaseName(fm[0].Source)
		outFile := path.Join(outDir, base+"_framerate.png")
		err := analysis.MultiPlotSource(fm, base, outFile)
		if errors.Is(err, analysis.ErrNoFrametimes) {
			logging.Infof("Skip plots for %s, frametime missing", fm[0].Source)
			continue
		}
		if err != nil {
			return fmt.Errorf("creating %s multiplot: %w", base, err)
		}
		logging.Infof("Framerate multi-plot done: %s", outFile)
		compared = append(compared, fm)
	}

	if len(compared) == 0 {
		logging.Info("Skip comparison plot, nothing to compare")
		return nil
	}
	outFile := path.Join(outDir, comparisonPlotFile)
	if err := analysis.PlotComparison(compared, "Framerate comparison", outFile); err != nil {
		return fmt.Errorf("creating comparison plot: %w", err)
	}
	logging.Infof("Comparison plot done: %s", outFile)

	return nil
}

// plotBaseName strips directory and extension from source name.
func plotBaseName(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
