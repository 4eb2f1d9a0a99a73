// Package logging configures the process-wide zerolog logger and hands out
// component-scoped children of it.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init sets the global zerolog level, matching the level flag in the CLI
// surface, and returns a timestamped logger writing structured JSON to out.
func Init(level string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(out).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component, so log
// lines from membership, the engine, and the router are distinguishable.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
