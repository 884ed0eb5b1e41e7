// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
)

// Config selects the logger's outputs.
type Config struct {
	// Verbose lowers the console level from warn to info.
	Verbose bool

	// FilePath, if set, receives every record at debug level. Missing
	// parent directories are created.
	FilePath string

	// Console defaults to os.Stderr.
	Console io.Writer

	// MaxSizeMB and MaxBackups control rotation of the log file.
	// Zero selects 50 MB and 5 backups.
	MaxSizeMB  int
	MaxBackups int
}

// Output is a configured logger and the file it writes to.
type Output struct {
	// Logger writes to the console and, when configured, the file.
	Logger *slog.Logger

	// File writes to the log file only. It discards records when no
	// file is configured.
	File *slog.Logger

	file *lumberjack.Logger
}

// New builds the logger described by config.
func New(config Config) (*Output, error) {
	console := config.Console
	if console == nil {
		console = os.Stderr
	}
	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelInfo
	}
	consoleHandler := newConsoleHandler(console, level)

	output := &Output{
		Logger: slog.New(consoleHandler),
		File:   slog.New(slog.DiscardHandler),
	}
	if config.FilePath == "" {
		return output, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := config.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	output.file = &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}

	fileHandler := slog.NewTextHandler(output.file, &slog.HandlerOptions{Level: slog.LevelDebug})
	output.File = slog.New(fileHandler)
	output.Logger = slog.New(fanout{consoleHandler, fileHandler})
	return output, nil
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

func newConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}
