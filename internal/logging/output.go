package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Build creates a logger for cfg. The returned closer releases the log file,
// if any.
func Build(cfg Config) (zerolog.Logger, io.Closer, error) {
	return BuildTo(os.Stdout, cfg)
}

// BuildTo is Build with an explicit console stream.
func BuildTo(out io.Writer, cfg Config) (zerolog.Logger, io.Closer, error) {
	console := consoleWriter(out, cfg)

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		file, err := fileWriter(cfg)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		w = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger(), closer, nil
}

func consoleWriter(out io.Writer, cfg Config) io.Writer {
	if cfg.Bypass {
		return out
	}
	cw := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return cw
}

func fileWriter(cfg Config) (io.WriteCloser, error) {
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir create failed (%s): %w", dir, err)
		}
	}
	if cfg.Rotation.Enabled {
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.Rotation.MaxSizeMB, 1),
			MaxBackups: max(cfg.Rotation.MaxBackups, 1),
			MaxAge:     max(cfg.Rotation.MaxAgeDays, 1),
			Compress:   cfg.Rotation.Compress,
		}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file open failed (%s): %w", cfg.File, err)
	}
	return f, nil
}
