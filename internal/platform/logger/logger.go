// Package logger builds the service's zerolog logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config holds logging configuration
type Config struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// New returns a logger writing to stdout. Unknown levels fall back to info;
// any format other than "json" uses the console writer.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := w
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "smartrecipe").Logger()
}
