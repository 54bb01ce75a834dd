// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Two-level application logging (Info and Debug, plus Warn for quality warnings).
// Thin wrap around logrus so that call sites stay as terse as with the standard
// library's "log" package while structured fields remain available.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the application wide logger. Output is discarded until explicitly
// enabled via call to Enable*Logger().
var Logger = newLogger()

var defaultOutput io.Writer = os.Stderr

// Fields is an alias so that callers do not need to import logrus directly.
type Fields = logrus.Fields

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return l
}

// EnableInfoLogger helper function to explicitly enable Info (and Warn) output.
func EnableInfoLogger() {
	Logger.SetOutput(defaultOutput)
}

// EnableDebugLogger helper function to explicitly enable Debug output.
func EnableDebugLogger() {
	Logger.SetOutput(defaultOutput)
	Logger.SetLevel(logrus.DebugLevel)
}

// UseJSONFormat switches to one JSON object per log line.
func UseJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
}

// SetOutput redirects log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// WithFields returns an entry carrying given structured fields.
func WithFields(f Fields) *logrus.Entry {
	return Logger.WithFields(f)
}

func Info(v ...interface{}) {
	Logger.Info(v...)
}

func Infof(format string, v ...interface{}) {
	Logger.Infof(format, v...)
}

func Warn(v ...interface{}) {
	Logger.Warn(v...)
}

func Warnf(format string, v ...interface{}) {
	Logger.Warnf(format, v...)
}

func Debug(v ...interface{}) {
	Logger.Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	Logger.Debugf(format, v...)
}
