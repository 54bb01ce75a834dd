// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// tearscope tool's run subcommand implementation.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/evolution-gaming/tearscope/internal/compose"
	"github.com/evolution-gaming/tearscope/internal/export"
	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/metric"
	"github.com/evolution-gaming/tearscope/internal/source"
	"github.com/evolution-gaming/tearscope/internal/vqm"
)

// CreateRunCommand will create instance of App.
func CreateRunCommand() *App {
	longHelp := `Subcommand "run" will decode given videos in lock-step, measure duplicate frames,
framerate, frametime and tears for each of them and export a composed image
sequence along with a per-frame metrics log. At least one -i flag and -out-dir
flag are mandatory.

Recorded framerate can be given once for all sources or once per source via
-fps flag, otherwise it defaults to 60.

Examples:

  tearscope run -i capture1.mp4 -i capture2.mp4 -out-dir path/to/output/dir
  tearscope run -i a.mp4 -i b.mp4 -fps 60 -fps 144 -format jpeg -offset 100 -out-dir out`

	app := &App{
		fs:     flag.NewFlagSet("run", flag.ContinueOnError),
		gf:     globalFlags{},
		mStore: metric.NewStore(),
	}
	app.gf.Register(app.fs)
	app.fs.Var(&app.flInputs, "i", "Input video file, repeat for multiple sources")
	app.fs.Var(&app.flFramerates, "fps", "Recorded framerate, once for all sources or once per source (optional)")
	app.fs.StringVar(&app.flOutDir, "out-dir", "", "Output directory to store results")
	app.fs.StringVar(&app.flPrefix, "prefix", "", "Image file name prefix (optional)")
	app.fs.IntVar(&app.flOffset, "offset", 0, "First image sequence number")
	app.fs.StringVar(&app.flFormat, "format", "", "Image format: png, jpeg, bmp or tiff (optional)")
	app.fs.IntVar(&app.flColumns, "cols", 0, "Number of grid columns, 0 for auto")
	app.fs.BoolVar(&app.flNoTears, "no-tears", false, "Disable tear detection")
	app.fs.BoolVar(&app.flNoPlots, "no-plots", false, "Do not create plots")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure App implements Commander interface.
var _ Commander = (*App)(nil)

// App is subcommand application context that implements Commander interface.
type App struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *flag.FlagSet
	// Input video files
	flInputs stringList
	// Recorded framerates
	flFramerates floatList
	// Output directory for export and analysis results
	flOutDir  string
	flPrefix  string
	flOffset  int
	flFormat  string
	flColumns int
	flNoTears bool
	flNoPlots bool
	// Set when -offset is given explicitly
	offsetSet bool
	// Global flags
	gf globalFlags
	// Per source summary store
	mStore *metric.Store
	// Source recorded framerates, one per input
	framerates []float64
}

func (a *App) Name() string {
	return a.fs.Name()
}

func (a *App) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *App) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.fs.Name()),
		}
	}
	a.gf.Apply()
	a.fs.Visit(func(f *flag.Flag) {
		if f.Name == "offset" {
			a.offsetSet = true
		}
	})

	// At least one input is mandatory.
	if len(a.flInputs) == 0 {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	// Output dir is mandatory.
	if a.flOutDir == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -out-dir is missing",
		}
	}

	if a.flOffset < 0 {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("negative -offset %d", a.flOffset),
		}
	}

	fps, err := expandFramerates(a.flFramerates, len(a.flInputs))
	if err != nil {
		a.fs.Usage()
		return &AppError{exitCode: 2, msg: fmt.Sprintf("option -fps: %s", err)}
	}
	a.framerates = fps

	// Load application configuration.
	c, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &c
	a.overrideConfig()

	return nil
}

// overrideConfig applies command line flags on top of loaded configuration.
func (a *App) overrideConfig() {
	if a.flFormat != "" {
		a.cfg.ImageFormat = NewConfigVal(a.flFormat)
	}
	if a.flPrefix != "" {
		a.cfg.ImagePrefix = NewConfigVal(a.flPrefix)
	}
	if a.flColumns != 0 {
		a.cfg.GridColumns = NewConfigVal(a.flColumns)
	}
	if a.flNoTears {
		a.cfg.EnableTears = NewConfigVal(false)
	}
}

// sequenceOffset picks first image sequence number so that images of earlier
// runs in the same directory are never overwritten.
func (a *App) sequenceOffset(s export.Session) (int, error) {
	last, found, err := s.LastSequence()
	if err != nil {
		return 0, &AppError{exitCode: 1, msg: fmt.Sprintf("scanning output directory: %s", err)}
	}
	switch {
	case !found:
		return a.flOffset, nil
	case a.offsetSet && a.flOffset <= last:
		return 0, &AppError{
			exitCode: 1,
			msg:      fmt.Sprintf("-offset %d would overwrite existing images up to %d", a.flOffset, last),
		}
	case a.offsetSet:
		return a.flOffset, nil
	}
	logging.Infof("Continuing image sequence after existing image %d", last)
	return last + 1, nil
}

// runExport will run export stage: decode, measure, compose and persist batches.
//
// Returned status is the terminal status of the coordinator.
func (a *App) runExport(set *source.Set, session export.Session) (*export.Coordinator, export.Status, error) {
	engine := vqm.NewEngine(a.cfg.EngineConfig())
	grid := compose.NewGrid(set.Len(), a.cfg.GridColumns.Value(), a.cfg.CellWidth.Value())
	coord := export.NewCoordinator(set, engine, grid)

	if err := coord.Start(session); err != nil {
		return coord, export.StatusNone, fmt.Errorf("starting export: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := a.cfg.ProgressInterval.Value()
	onProgress := func(p export.Progress) {
		if interval > 0 && p.Batch%interval == 0 {
			logging.WithFields(logging.Fields{
				"batch":    p.Batch,
				"sequence": p.Sequence,
			}).Infof("Export progress %.1f%%", p.Shortest*100)
		}
	}

	for {
		status, err := coord.Drive(ctx, onProgress)
		if status == export.StatusCompositionFailure {
			// Batch is skipped, session keeps going.
			continue
		}
		return coord, status, err
	}
}

// summarize will aggregate metrics log rows of this session into metric store.
func (a *App) summarize(set *source.Set, coord *export.Coordinator) (map[int]vqm.FrameMetrics, error) {
	session := coord.Session()
	fm, err := readMetricsLog(session.LogPath())
	if err != nil {
		return nil, err
	}
	bySource := fm.BySource()

	groups := make(map[int]vqm.FrameMetrics, set.Len())
	for i := 0; i < set.Len(); i++ {
		// Log could have been appended to by earlier runs, rows of this
		// session are the trailing ones.
		rows := lastN(bySource[i], coord.Rows(i))
		groups[i] = rows

		src := set.Source(i)
		record := metric.Record{
			Session:           session.ID.String(),
			Name:              filepath.Base(src.Path()),
			SourceIndex:       i,
			SourceFile:        src.Path(),
			RecordedFramerate: src.RecordedFramerate(),
		}
		if src.Failed() {
			record.SourceError = src.Err().Error()
		}
		record.SetAggregate(vqm.Aggregate(rows))
		id := a.mStore.Insert(record)
		logging.Debugf("Storing record (id=%v) for %s", id, src.Path())
	}

	return groups, nil
}

// saveReport writes recorded metrics to report file.
func (a *App) saveReport(outDir string) error {
	reportPath := path.Join(outDir, a.cfg.ReportFileName.Value())
	reportOut, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating CSV report file: %w", err)
	}
	defer reportOut.Close()

	if err := a.mStore.WriteCSV(reportOut); err != nil {
		return err
	}
	logging.Infof("Report written: %s", reportPath)
	return nil
}

// Run is main entry point into App execution.
func (a *App) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}
	logging.Infof("tearscope version: %s", vInfo)

	logging.Debugf("Application configuration: %#v", a.cfg)
	// Check if configuration is valid.
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	// To avoid ambiguity, resolve output path to absolute representation.
	outDirPath, err := filepath.Abs(a.flOutDir)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if isNonEmptyDir(outDirPath) {
		logging.Infof("Output directory %s is not empty, metrics log will be appended", outDirPath)
	}

	session := export.NewSession(outDirPath)
	session.Prefix = a.cfg.ImagePrefix.Value()
	session.ImageFormat = a.cfg.ImageFormat.Value()
	session.LogFileName = a.cfg.MetricsLogName.Value()
	if session.SequenceOffset, err = a.sequenceOffset(session); err != nil {
		return err
	}

	specs := make([]source.Spec, len(a.flInputs))
	for i, in := range a.flInputs {
		specs[i] = source.Spec{Path: in, RecordedFramerate: a.framerates[i]}
	}
	set := source.NewSet(a.cfg.Decoder())
	defer set.Close()
	if err := set.Open(specs); err != nil {
		logging.Warnf("Some sources are unavailable: %s", err)
	}
	if set.Active() == 0 {
		return &AppError{exitCode: 1, msg: "no usable sources"}
	}

	// Run export stage.
	coord, status, err := a.runExport(set, session)
	if err != nil && status != export.StatusWriteFailure {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if status == export.StatusWriteFailure {
		var wErr *export.WriteError
		if errors.As(err, &wErr) {
			logging.Warnf("Output kept up to failure, failed path: %s", wErr.Path)
		}
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.WithFields(logging.Fields{
		"status":  status,
		"batches": coord.Batches(),
	}).Info("Export stage done")

	// Summarize whatever has been exported, cancelled session included.
	groups, err := a.summarize(set, coord)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if err = a.saveReport(outDirPath); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Run analysis stage.
	if !a.flNoPlots {
		if err = plotSources(groups, outDirPath); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
	}

	if status == export.StatusCancelled {
		return &AppError{exitCode: 1, msg: "export cancelled"}
	}

	logging.Info("Done")
	return nil
}

// lastN returns at most n trailing rows.
func lastN(fm vqm.FrameMetrics, n int) vqm.FrameMetrics {
	if n >= len(fm) {
		return fm
	}
	return fm[len(fm)-n:]
}
