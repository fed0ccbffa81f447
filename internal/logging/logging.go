// Package logging builds the structured loggers used across upkeep.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // text, json, logfmt
	Timestamp bool
}

// New returns a logger writing to w with the "upkeep" prefix.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var formatter log.Formatter
	switch strings.ToLower(opts.Format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text, json, or logfmt)", opts.Format)
	}

	return log.NewWithOptions(w, log.Options{
		Prefix:          "upkeep",
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: opts.Timestamp,
		TimeFormat:      time.RFC3339,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
