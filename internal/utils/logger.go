package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects verbosity, format and destination for NewLogger.
type LogOptions struct {
	Level      string
	JSON       bool
	Output     string // "stdout", "stderr" or "file"
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger returns a slog.Logger configured for the desired verbosity, format and output.
func NewLogger(opts LogOptions) *slog.Logger {
	return NewLoggerWithWriter(opts.Level, opts.JSON, logWriter(opts))
}

// NewLoggerWithWriter builds a logger that writes to w.
func NewLoggerWithWriter(level string, json bool, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func logWriter(opts LogOptions) io.Writer {
	switch strings.ToLower(opts.Output) {
	case "file":
		if opts.FilePath == "" {
			fmt.Fprintln(os.Stderr, "logging output=file without filePath, using stdout")
			return os.Stdout
		}
		if dir := filepath.Dir(opts.FilePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				fmt.Fprintf(os.Stderr, "create log dir %q: %v, using stdout\n", dir, err)
				return os.Stdout
			}
		}
		return &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}
