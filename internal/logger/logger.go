package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"parking-fines-service/internal/config"
)

// New builds the service logger. Development and the "console" format write
// human-readable lines; everything else writes JSON.
func New(cfg *config.Config) zerolog.Logger {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	format := cfg.Log.Format
	if format == "" && cfg.IsDevelopment() {
		format = "console"
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.App.Name).
		Str("camera", cfg.Camera.ID).
		Logger()
}
