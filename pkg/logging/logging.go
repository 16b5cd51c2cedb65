// Package logging builds the single root *zerolog.Logger that
// cmd/searchd hands down into every constructor in
// this module (termdict.New, indexsvc.New, docstore.New, scheduler.New,
// engine.New, ...). None of those constructors reach for a package
// global; they all take a *zerolog.Logger parameter and fall back to
// zerolog.Nop() when it is nil, so this package's only job is to turn
// a level string into one real logger at process startup.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a *zerolog.Logger writing to w at the given level. level
// is case-insensitive and accepts zerolog's standard names (debug,
// info, warn, error, fatal, panic, trace, disabled); an unrecognized
// level falls back to info rather than failing startup over a typo in
// a flag or environment variable.
func New(w io.Writer, level string) *zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &logger
}

// NewConsole builds a logger formatted for an interactive terminal
// (cmd/search-cli's target), using zerolog's ConsoleWriter instead of
// raw JSON lines.
func NewConsole(w io.Writer, level string) *zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return New(cw, level)
}

// Fatal prints an emoji-prefixed error to stderr and exits the process
// with status 1, matching cmd/server/main.go's startup-failure texture
// ("❌ Failed to create server: %v").
func Fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
