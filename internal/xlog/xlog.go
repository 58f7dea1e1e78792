/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xlog wraps go.uber.org/zap with the broker's logging config:
// an optional console sink and optional rotating on-disk files, split by
// level via gopkg.in/natefinch/lumberjack.v2.
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the handle every broker component logs through, obtained with
// LoggerModule so every log line carries a "module" field.
type Log = zap.Logger

// Level is the logger.level config enum.
type Level string

const (
	LevelOff   Level = "off"
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	// LevelTrace has no native zap level; it maps to DebugLevel plus an
	// extra "trace": true field on every entry so a log pipeline can
	// still filter trace-only noise out of debug logs.
	LevelTrace Level = "trace"
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelDebug, LevelTrace:
		return zapcore.DebugLevel
	case LevelOff:
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// Options configures the process-wide base logger built by Init.
type Options struct {
	Console bool
	File    bool
	Level   Level
	// Dir is the directory rotating log files are written under.
	// Defaults to "logs" when empty.
	Dir string
}

var (
	mu   sync.Mutex
	base *zap.Logger = zap.NewNop()
)

// Init installs the process-wide base logger from opts. Safe to call
// more than once (e.g. after a config reload); every Log obtained via
// LoggerModule before the most recent Init keeps logging through its own
// snapshot, since zap.Logger values are immutable.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	if opts.Level == LevelOff {
		base = zap.NewNop()
		return
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	lvl := opts.Level.zapLevel()

	if opts.Console {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), lvl))
	}

	if opts.File {
		dir := opts.Dir
		if dir == "" {
			dir = "logs"
		}
		jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)
		cores = append(cores,
			zapcore.NewCore(jsonEncoder, fileSink(dir, "main.log"), lvl),
			zapcore.NewCore(jsonEncoder, fileSink(dir, "error.log"), zapcore.ErrorLevel),
		)
		if lvl <= zapcore.DebugLevel {
			cores = append(cores, zapcore.NewCore(jsonEncoder, fileSink(dir, "debug.log"), zapcore.DebugLevel))
		}
	}

	if len(cores) == 0 {
		base = zap.NewNop()
		return
	}

	extra := make([]zap.Field, 0, 1)
	if opts.Level == LevelTrace {
		extra = append(extra, zap.Bool("trace", true))
	}
	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(extra...)
}

func fileSink(dir, name string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   dir + string(os.PathSeparator) + name,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
}

// LoggerModule returns a logger scoped to the named module, matching the
// teacher's `xlog.LoggerModule("server")` call convention.
func LoggerModule(name string) *Log {
	mu.Lock()
	defer mu.Unlock()
	return base.With(zap.String("module", name))
}
