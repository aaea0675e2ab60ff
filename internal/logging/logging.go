// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the log level and output format.
type Options struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // "console" for human output, anything else for JSON
}

// Init builds the root logger and installs it as zerolog's global logger.
// Components receive children of this logger with their own context fields.
func Init(opts Options) (zerolog.Logger, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging: invalid level %q: %w", opts.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stderr
	if strings.ToLower(opts.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Logger()

	log.Logger = logger
	return logger, nil
}
