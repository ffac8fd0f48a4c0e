// Package logger provides the process-wide structured logger used across
// curve's subsystems. It mirrors the zerolog wiring pattern the rest of the
// codebase expects from internal/pkg/logger: a package-level Logger plus an
// explicit Init() that reads LOG_LEVEL.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the package-level structured logger. Callers add fields with
// Logger.With()... before logging; components that need a sub-logger tag
// themselves with Str("component", ...).
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures Logger's level from LOG_LEVEL (trace, debug, info, warn,
// error, fatal, panic; default info) and installs a console writer when
// stderr is a terminal. Safe to call more than once.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	zerolog.SetGlobalLevel(level)

	out := os.Stderr
	if isTerminal(out) {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
