// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level and destination of the logger.
type Options struct {
	Level      string
	File       string // empty logs to Console
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer // defaults to stdout
}

// New returns a JSON slog logger. When File is set, output goes to a
// size-rotated file instead of the console.
func New(opts Options) *slog.Logger {
	return slog.New(slog.NewJSONHandler(Writer(opts), &slog.HandlerOptions{Level: ParseLevel(opts.Level)}))
}

// Writer returns the destination for opts.
func Writer(opts Options) io.Writer {
	if opts.File == "" {
		if opts.Console != nil {
			return opts.Console
		}
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
