// Package logger configures the process-wide zerolog.Logger, the
// structured logging library the teacher already depends on throughout
// internal/infrastructure/monitoring.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing structured JSON to stderr at the
// given level (one of zerolog's level names: debug, info, warn, error).
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Caller().Logger()
}
