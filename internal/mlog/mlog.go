/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package mlog wraps logrus with the field-map idiom used across the
// bridge: every subsystem logs through a Fields value keyed by server
// or connection id so log lines can be correlated without a tracing
// system.
package mlog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields mirrors logrus.Fields with an immutable-looking Add so call
// sites can chain without fear of mutating a shared map.
type Fields map[string]interface{}

func (f Fields) Add(key string, val interface{}) Fields {
	res := make(Fields, len(f)+1)
	for k, v := range f {
		res[k] = v
	}
	res[key] = val
	return res
}

func (f Fields) logrus() logrus.Fields {
	return logrus.Fields(f)
}

// Logger is the subset of logrus used by the bridge, kept narrow so
// subsystems depend on a small interface rather than *logrus.Logger.
type Logger interface {
	WithFields(f Fields) Logger
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

type logger struct {
	entry *logrus.Entry
}

func (l *logger) WithFields(f Fields) Logger {
	return &logger{entry: l.entry.WithFields(f.logrus())}
}

func (l *logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logger) Error(args ...interface{}) { l.entry.Error(args...) }

// ParseLevel maps a LOG_LEVEL env value onto a logrus.Level, defaulting
// to Info on anything unrecognized.
func ParseLevel(raw string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "info", "":
		return logrus.InfoLevel
	default:
		return logrus.InfoLevel
	}
}

// New builds a Logger writing to stderr — stdout on stdio transports
// is reserved for framed MCP traffic, and a child process's stderr is
// captured for logging only, so the bridge process itself follows the
// same convention for its own logs.
func New(level string) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(ParseLevel(level))
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: logrus.NewEntry(l)}
}

// Nop returns a Logger that discards everything, used by tests that
// don't want log noise on stderr.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return &logger{entry: logrus.NewEntry(l)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
