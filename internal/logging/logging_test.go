// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/evolution-gaming/tearscope/internal/logging"
	"github.com/sirupsen/logrus"
)

func TestUnformattedLogging(t *testing.T) {
	tests := map[string]struct {
		given   string
		want    *regexp.Regexp
		logFunc func(...interface{})
	}{
		"Simple Info": {
			given:   "info message",
			want:    regexp.MustCompile(`level=info msg="info message"`),
			logFunc: logging.Info,
		},
		"Simple Warn": {
			given:   "warn message",
			want:    regexp.MustCompile(`level=warning msg="warn message"`),
			logFunc: logging.Warn,
		},
		"Simple Debug": {
			given:   "debug message",
			want:    regexp.MustCompile(`level=debug msg="debug message"`),
			logFunc: logging.Debug,
		},
	}
	logging.Logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() { logging.Logger.SetLevel(logrus.InfoLevel) })

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			logging.SetOutput(&out)
			tc.logFunc(tc.given)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestFormattedLogging(t *testing.T) {
	tests := map[string]struct {
		given1  string
		given2  string
		want    *regexp.Regexp
		format  string
		logFunc func(string, ...interface{})
	}{
		"Complex Info": {
			given1:  "info message 1",
			given2:  "info message 2",
			want:    regexp.MustCompile(`level=info msg="info message 1 -- info message 2"`),
			format:  "%s -- %s",
			logFunc: logging.Infof,
		},
		"Complex Debug": {
			given1:  "debug message 1",
			given2:  "debug message 2",
			format:  "%s -- %s",
			want:    regexp.MustCompile(`level=debug msg="debug message 1 -- debug message 2"`),
			logFunc: logging.Debugf,
		},
	}
	logging.Logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() { logging.Logger.SetLevel(logrus.InfoLevel) })

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out strings.Builder
			logging.SetOutput(&out)
			tc.logFunc(tc.format, tc.given1, tc.given2)
			got := out.String()
			if !tc.want.MatchString(got) {
				t.Errorf("Log message not found (-want/+got)\n\t-%s\n\t+%s", tc.want.String(), got)
			}
		})
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var out strings.Builder
	logging.SetOutput(&out)
	logging.Logger.SetLevel(logrus.InfoLevel)

	logging.Debug("hidden")
	if out.Len() != 0 {
		t.Errorf("Expected no debug output at info level, got: %s", out.String())
	}
}

func TestWithFields(t *testing.T) {
	var out strings.Builder
	logging.SetOutput(&out)

	logging.WithFields(logging.Fields{"source": 2}).Info("tagged")
	if !strings.Contains(out.String(), "source=2") {
		t.Errorf("Expected structured field in output, got: %s", out.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var out strings.Builder
	logging.SetOutput(&out)
	logging.UseJSONFormat()
	t.Cleanup(func() { logging.Logger.SetFormatter(&logrus.TextFormatter{DisableColors: true}) })

	logging.WithFields(logging.Fields{"source": 1}).Warn("resolution changed")
	got := out.String()
	for _, want := range []string{`"level":"warning"`, `"msg":"resolution changed"`, `"source":1`} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %s in output, got: %s", want, got)
		}
	}
}
