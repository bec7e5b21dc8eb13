package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the process logger. Console output is human readable and meant
// for development; otherwise one JSON object is written per line.
func New(level string, console bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, console)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level string, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
