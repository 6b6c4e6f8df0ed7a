// Package logger provides the application-wide logger. The printf-style
// helpers are backed by zerolog so output can be switched between console
// and JSON via LOG_FORMAT without touching call sites.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)
}

// Init configures the global logger. It runs once with environment defaults
// and may be called again from tests with io.Discard.
func Init(level, format string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Info(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}
