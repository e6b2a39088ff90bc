// Package logger constructs the zerolog.Logger used across the core,
// mirroring the teacher gateway's logger.New(cfg) shape.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alfred-ops/restaurant-core/internal/config"
)

// New returns a configured zerolog.Logger. In development it writes
// human-readable console output to stderr; in production it writes JSON,
// optionally fanned out to a rotating file via lumberjack when
// cfg.LogFile is set.
func New(cfg *config.Config) zerolog.Logger {
	var out io.Writer
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		out = os.Stderr
	}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Logger()
}
