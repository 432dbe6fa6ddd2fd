package platform

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger configures the process-wide zerolog logger. LOG_FORMAT=console
// switches from JSON to human-readable output.
func InitLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(GetEnv("LOG_LEVEL", "info")))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if GetEnv("LOG_FORMAT", "json") == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
