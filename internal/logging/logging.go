// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level and points log.Logger at w (stderr when nil).
// Format "text" gives human-readable console output, "json" raw lines.
func Setup(level, format string, w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("parse log level %q: %w", level, err)
		}
	}
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case "", "text":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}
