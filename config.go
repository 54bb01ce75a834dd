// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application configuration structures.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evolution-gaming/tearscope/internal/compose"
	"github.com/evolution-gaming/tearscope/internal/export"
	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/evolution-gaming/tearscope/internal/tools"
	"github.com/evolution-gaming/tearscope/internal/video"
	"github.com/evolution-gaming/tearscope/internal/vqm"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	defaultReportFile = "report.csv"
)

// Config represent application configuration.
type Config struct {
	FfmpegPath           ConfigVal[string]  `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	FfprobePath          ConfigVal[string]  `json:"ffprobe_path,omitempty" yaml:"ffprobe_path,omitempty"`
	FfmpegDecodeTemplate ConfigVal[string]  `json:"ffmpeg_decode_template,omitempty" yaml:"ffmpeg_decode_template,omitempty"`
	CountFrames          ConfigVal[bool]    `json:"count_frames,omitempty" yaml:"count_frames,omitempty"`
	ImageFormat          ConfigVal[string]  `json:"image_format,omitempty" yaml:"image_format,omitempty"`
	ImagePrefix          ConfigVal[string]  `json:"image_prefix,omitempty" yaml:"image_prefix,omitempty"`
	MetricsLogName       ConfigVal[string]  `json:"metrics_log_name,omitempty" yaml:"metrics_log_name,omitempty"`
	ReportFileName       ConfigVal[string]  `json:"report_file_name,omitempty" yaml:"report_file_name,omitempty"`
	DuplicateThreshold   ConfigVal[float64] `json:"duplicate_threshold,omitempty" yaml:"duplicate_threshold,omitempty"`
	PixelStep            ConfigVal[int]     `json:"pixel_step,omitempty" yaml:"pixel_step,omitempty"`
	WindowSize           ConfigVal[int]     `json:"window_size,omitempty" yaml:"window_size,omitempty"`
	EnableTears          ConfigVal[bool]    `json:"enable_tears,omitempty" yaml:"enable_tears,omitempty"`
	TearRowThreshold     ConfigVal[float64] `json:"tear_row_threshold,omitempty" yaml:"tear_row_threshold,omitempty"`
	TearMinBand          ConfigVal[float64] `json:"tear_min_band,omitempty" yaml:"tear_min_band,omitempty"`
	TearChangedFraction  ConfigVal[float64] `json:"tear_changed_fraction,omitempty" yaml:"tear_changed_fraction,omitempty"`
	GridColumns          ConfigVal[int]     `json:"grid_columns,omitempty" yaml:"grid_columns,omitempty"`
	CellWidth            ConfigVal[int]     `json:"cell_width,omitempty" yaml:"cell_width,omitempty"`
	ProgressInterval     ConfigVal[int]     `json:"progress_interval,omitempty" yaml:"progress_interval,omitempty"`
}

// Verify will check that configuration is valid.
//
// Will check that configuration option values are sensible.
func (c *Config) Verify() error {
	msgs := []string{}
	// Check that ffmpeg exists.
	if !fileExists(c.FfmpegPath.Value()) {
		msgs = append(msgs, "invalid ffmpeg path")
	}
	// Check that ffprobe exists.
	if !fileExists(c.FfprobePath.Value()) {
		msgs = append(msgs, "invalid ffprobe path")
	}
	// Template should not be nil.
	if c.FfmpegDecodeTemplate.IsNil() || c.FfmpegDecodeTemplate.Value() == "" {
		msgs = append(msgs, "empty ffmpeg decode template")
	}
	if !isOneOf(c.ImageFormat.Value(), export.ImageFormats) {
		msgs = append(msgs, fmt.Sprintf("image format should be one of %s", strings.Join(export.ImageFormats, "|")))
	}
	if c.MetricsLogName.Value() == "" {
		msgs = append(msgs, "empty metrics log name")
	}
	// Report file should not be nil.
	if c.ReportFileName.Value() == "" {
		msgs = append(msgs, "empty report file name")
	}
	if c.DuplicateThreshold.Value() < 0 {
		msgs = append(msgs, "negative duplicate threshold")
	}
	if c.PixelStep.Value() < 1 {
		msgs = append(msgs, "pixel step should be at least 1")
	}
	if c.WindowSize.Value() < 0 {
		msgs = append(msgs, "negative window size")
	}
	if c.TearRowThreshold.Value() < 0 {
		msgs = append(msgs, "negative tear row threshold")
	}
	if v := c.TearMinBand.Value(); v <= 0 || v > 0.5 {
		msgs = append(msgs, "tear min band should be in (0, 0.5]")
	}
	if v := c.TearChangedFraction.Value(); v <= 0 || v > 1 {
		msgs = append(msgs, "tear changed fraction should be in (0, 1]")
	}
	if c.GridColumns.Value() < 0 {
		msgs = append(msgs, "negative grid columns")
	}
	if c.CellWidth.Value() < 16 {
		msgs = append(msgs, "cell width should be at least 16")
	}
	if c.ProgressInterval.Value() < 0 {
		msgs = append(msgs, "negative progress interval")
	}

	if len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidConfig)
	}
	return nil
}

// OverrideFrom will overwrite fields from given Config object.
//
// Only fields that are "not-nil" (as per IsNil() method) in src Config object will be
// overwritten.
func (c *Config) OverrideFrom(src Config) {
	// TODO: some way to iterate over fields and set them (reflection?) otherwise need to
	// remember to update this method when new  fields are added.
	overrideVal(&c.FfmpegPath, src.FfmpegPath)
	overrideVal(&c.FfprobePath, src.FfprobePath)
	overrideVal(&c.FfmpegDecodeTemplate, src.FfmpegDecodeTemplate)
	overrideVal(&c.CountFrames, src.CountFrames)
	overrideVal(&c.ImageFormat, src.ImageFormat)
	overrideVal(&c.ImagePrefix, src.ImagePrefix)
	overrideVal(&c.MetricsLogName, src.MetricsLogName)
	overrideVal(&c.ReportFileName, src.ReportFileName)
	overrideVal(&c.DuplicateThreshold, src.DuplicateThreshold)
	overrideVal(&c.PixelStep, src.PixelStep)
	overrideVal(&c.WindowSize, src.WindowSize)
	overrideVal(&c.EnableTears, src.EnableTears)
	overrideVal(&c.TearRowThreshold, src.TearRowThreshold)
	overrideVal(&c.TearMinBand, src.TearMinBand)
	overrideVal(&c.TearChangedFraction, src.TearChangedFraction)
	overrideVal(&c.GridColumns, src.GridColumns)
	overrideVal(&c.CellWidth, src.CellWidth)
	overrideVal(&c.ProgressInterval, src.ProgressInterval)
}

func overrideVal[T any](dst *ConfigVal[T], src ConfigVal[T]) {
	if !src.IsNil() {
		*dst = src
	}
}

// EngineConfig derives frame metrics engine configuration.
func (c *Config) EngineConfig() vqm.EngineConfig {
	return vqm.EngineConfig{
		DuplicateThreshold:  c.DuplicateThreshold.Value(),
		PixelStep:           c.PixelStep.Value(),
		WindowSize:          c.WindowSize.Value(),
		EnableTears:         c.EnableTears.Value(),
		TearRowThreshold:    c.TearRowThreshold.Value(),
		TearMinBand:         c.TearMinBand.Value(),
		TearChangedFraction: c.TearChangedFraction.Value(),
	}
}

// Decoder creates ffmpeg based video decoder.
func (c *Config) Decoder() *video.FfmpegDecoder {
	return &video.FfmpegDecoder{
		FfmpegPath: c.FfmpegPath.Value(),
		Template:   c.FfmpegDecodeTemplate.Value(),
		Probe:      &tools.Ffprobe{Path: c.FfprobePath.Value(), CountFrames: c.CountFrames.Value()},
	}
}

// loadDefaultConfig will create a default configuration.
//
// For some configuration options a default value will be specified, for others an
// auto-detection mechanism will populate option values.
func loadDefaultConfig() (Config, error) {
	var cfg Config

	// For default configuration attempt to locate ffmpeg binary.
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	// For default configuration attempt to locate ffprobe binary.
	ffprobe, err := tools.FfprobePath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	ec := vqm.DefaultEngineConfig()
	cfg = Config{
		FfmpegPath:           NewConfigVal(ffmpeg),
		FfprobePath:          NewConfigVal(ffprobe),
		FfmpegDecodeTemplate: NewConfigVal(video.DefaultFfmpegDecodeTemplate),
		CountFrames:          NewConfigVal(false),
		ImageFormat:          NewConfigVal(export.DefaultImageFormat),
		ImagePrefix:          NewConfigVal(export.DefaultPrefix),
		MetricsLogName:       NewConfigVal(export.DefaultLogFileName),
		ReportFileName:       NewConfigVal(defaultReportFile),
		DuplicateThreshold:   NewConfigVal(ec.DuplicateThreshold),
		PixelStep:            NewConfigVal(ec.PixelStep),
		WindowSize:           NewConfigVal(ec.WindowSize),
		EnableTears:          NewConfigVal(ec.EnableTears),
		TearRowThreshold:     NewConfigVal(ec.TearRowThreshold),
		TearMinBand:          NewConfigVal(ec.TearMinBand),
		TearChangedFraction:  NewConfigVal(ec.TearChangedFraction),
		GridColumns:          NewConfigVal(0),
		CellWidth:            NewConfigVal(compose.DefaultCellWidth),
		ProgressInterval:     NewConfigVal(100),
	}

	return cfg, nil
}

// loadConfigFromFile will load configuration from file.
//
// JSON and YAML are supported, format is chosen by file extension.
func loadConfigFromFile(f string) (cfg Config, err error) {
	fileExt := strings.ToLower(filepath.Ext(f))
	switch fileExt {
	case ".json":
		return loadJSON(f)
	case ".yaml", ".yml":
		return loadYAML(f)
	default:
		return cfg, fmt.Errorf("unknown config format: %s", fileExt)
	}
}

// LoadConfig will return merged default config and config from file. This is main
// function to use for config loading. Configuration file is optional e.g. can be "".
func LoadConfig(configFile string) (cfg Config, err error) {
	// Initialize default configuration.
	cfg, err = loadDefaultConfig()
	if err != nil {
		return cfg, err
	}

	// Load configuration from file and override default configuration options.
	if configFile != "" {
		c, err := loadConfigFromFile(configFile)
		if err != nil {
			return cfg, err
		}
		// Configuration file can specify full set or partial set of configuration
		// options. So we only want to override those options that have been specified in
		// config file, re st will remain as per default config.
		cfg.OverrideFrom(c)
	}

	return cfg, nil
}

func loadJSON(f string) (cfg Config, err error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return cfg, fmt.Errorf("config from JSON file: %w", err)
	}

	if len(b) == 0 {
		return cfg, fmt.Errorf("JSON file is empty: %w", ErrInvalidConfig)
	}

	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from JSON document: %w", err)
	}

	return cfg, nil
}

func loadYAML(f string) (cfg Config, err error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return cfg, fmt.Errorf("config from YAML file: %w", err)
	}

	if len(strings.TrimSpace(string(b))) == 0 {
		return cfg, fmt.Errorf("YAML file is empty: %w", ErrInvalidConfig)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config from YAML document: %w", err)
	}

	return cfg, nil
}

// In order to support Config overriding we have to implement wrapper type for Config
// fields. Otherwise it is hard to distinguish skipped fields, for instance when loading
// partial configuration from file: in that case it would be impossible to  distinguish
// between say string fields zero value and empty string values as explicitly specified in
// configuration file.

// NewConfigVal is constructor for ConfigVal. It will wrap its argument into ConfigVal.
func NewConfigVal[T any](v T) ConfigVal[T] {
	return ConfigVal[T]{v: &v}
}

// ConfigVal is a wrapper for Config field value.
type ConfigVal[T any] struct {
	// Store wrapped value as pointer in order to have ability to distinguish between
	// unspecified ConfigVal and a value that is the same as zero value for wrapped type.
	// In this case a zero value for pointer is nil.
	//
	// For example a zero value for string is "" which is impossible to distinguish from
	// explicit empty string "".
	v *T
}

// Value will return wrapped value.
//
// In case field has not been defined e.g. is zero value, then appropriate zero value of
// wrapped typw will be returned.
func (o *ConfigVal[T]) Value() T {
	if o.IsNil() {
		var v T
		return v
	}
	return *o.v
}

// IsNil check if wrapped value is nil.
func (o *ConfigVal[T]) IsNil() bool {
	// Zero value for pointer type is nil.
	return o.v == nil
}

// IsZero reports unspecified value, used by YAML omitempty.
func (o ConfigVal[T]) IsZero() bool {
	return o.v == nil
}

// UnmarshalJSON implements json.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalJSON(b []byte) error {
	var val T
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalJSON implements json.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

// UnmarshalYAML implements yaml.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalYAML(node *yaml.Node) error {
	var val T
	if err := node.Decode(&val); err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalYAML implements yaml.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalYAML() (interface{}, error) {
	return o.Value(), nil
}

func CreateDumpConfCommand() *DumpConfApp {
	longHelp := `Command "dump-conf" will print actual application configuration taking into account
configuration file provided and default configuration values.

Examples:

	tearscope dump-conf
	tearscope dump-conf -conf path/to/config.yaml -format yaml`

	app := &DumpConfApp{
		fs:  flag.NewFlagSet("dump-conf", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flFormat, "format", "json", "Output format: json or yaml")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Also define command "dump-conf" here.

// Make sure App implements Commander interface.
var _ Commander = (*DumpConfApp)(nil)

// DumpConfApp is subcommand application context that implements Commander interface.
// Although this is very simple application, but for consistency sake is is implemented in
// similar style as other subcommands.
type DumpConfApp struct {
	out      io.Writer
	fs       *flag.FlagSet
	gf       globalFlags
	flFormat string
}

func (d *DumpConfApp) Name() string {
	return d.fs.Name()
}

func (d *DumpConfApp) Help() {
	d.fs.Usage()
}

// Run is main entry point into DumpConfApp execution.
func (d *DumpConfApp) Run(args []string) error {
	if err := d.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}
	d.gf.Apply()

	// Load application configuration.
	cfg, err := LoadConfig(d.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	switch d.flFormat {
	case "json":
		enc := json.NewEncoder(d.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(d.out)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err == nil {
			err = enc.Close()
		}
	default:
		d.Help()
		return &AppError{exitCode: 2, msg: fmt.Sprintf("unknown format: %s", d.flFormat)}
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Debugf("Configuration dumped as %s", d.flFormat)

	// Also, report if configuration is valid.
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}
