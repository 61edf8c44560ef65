// Package logging routes the standard logger and slog to stdout and, when
// configured, a rotating log file.
package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"plexfront/config"
)

// Setup installs the process-wide loggers. The returned closer flushes and
// closes the log file; it is a no-op when logging to stdout only.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	out, closer, err := Writer(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closer, nil
}

// Writer returns console, optionally teed into a lumberjack file.
func Writer(cfg config.LoggingConfig, console io.Writer) (io.Writer, io.Closer, error) {
	if cfg.File == "" {
		return console, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return io.MultiWriter(console, file), file, nil
}

// Debugf logs through the standard logger only when debug logging is on.
func Debugf(format string, args ...any) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	log.Printf("[debug] "+format, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
