/*
Copyright 2019-2021 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package rlog provides the small logging interface used throughout
// pkg/resctrl, plus a default log/slog-backed implementation.
package rlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Logger is the logging interface accepted by the resctrl package. Any
// implementation with these four methods can be plugged in with
// resctrl.WithLogger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DebugBlock logs a multi-line message, indenting every line after the
// first with prefix. Useful for dumping a resolved schemata or host state.
func DebugBlock(l Logger, heading, prefix, format string, args ...interface{}) {
	lines := strings.Split(fmt.Sprintf(format, args...), "\n")
	if heading != "" {
		l.Debugf("%s", heading)
	}
	for _, line := range lines {
		l.Debugf("%s%s", prefix, line)
	}
}

type slogLogger struct {
	l *slog.Logger
}

// NewLoggerWrapper wraps a *slog.Logger as a Logger.
func NewLoggerWrapper(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debugf(format string, args ...interface{}) {
	s.l.Debug(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Infof(format string, args ...interface{}) {
	s.l.Info(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Warnf(format string, args ...interface{}) {
	s.l.Warn(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...interface{}) {
	s.l.Error(fmt.Sprintf(format, args...))
}

// LevelFlag implements flag.Value for a command line log-level flag.
type LevelFlag struct {
	level slog.Level
}

// NewLevelFlag creates a LevelFlag with the given default level.
func NewLevelFlag(level slog.Level) *LevelFlag {
	return &LevelFlag{level: level}
}

func (l *LevelFlag) Set(s string) error {
	switch strings.ToLower(s) {
	case "debug":
		l.level = slog.LevelDebug
	case "info":
		l.level = slog.LevelInfo
	case "warn":
		l.level = slog.LevelWarn
	case "error":
		l.level = slog.LevelError
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error")
	}
	return nil
}

func (l *LevelFlag) String() string {
	switch l.level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", l.level)
	}
}

// Level returns the currently set level.
func (l *LevelFlag) Level() slog.Level {
	return l.level
}
