package logsvc

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sauvini/onboarding/core"
)

// NewZerolog returns the local logger: "trace" | "debug" | "info" | "warn" | "error" levels,
// "json" | "console" formats. The console format is always used in debug mode.
func NewZerolog(conf core.LogConfig, debug bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level, err := zerolog.ParseLevel(strings.ToLower(conf.Level))
	if err != nil || conf.Level == "" {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(conf.Format) == "console" || debug {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
