package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crm-backend/config"
)

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return buildLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

// buildLogger writes JSON when format is "json", human-readable console output otherwise.
// Unknown levels fall back to info.
func buildLogger(w io.Writer, format, level string) zerolog.Logger {
	out := w
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
