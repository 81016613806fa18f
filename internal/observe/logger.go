package observe

import (
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// LogFormat selects the line format of [NewLogger].
type LogFormat string

const (
	// LogFormatText is human-readable, coloured when writing to a terminal.
	LogFormatText LogFormat = "text"

	// LogFormatJSON emits one JSON object per line.
	LogFormatJSON LogFormat = "json"

	// LogFormatLogfmt emits key=value pairs.
	LogFormatLogfmt LogFormat = "logfmt"
)

// IsValid reports whether f is a known format. The empty string is valid
// and means text.
func (f LogFormat) IsValid() bool {
	switch f {
	case "", LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return true
	}
	return false
}

// NewLogger returns an [slog.Logger] backed by a charmbracelet/log handler
// writing to w. slog levels map one-to-one onto charm levels.
func NewLogger(w io.Writer, level slog.Level, format LogFormat) *slog.Logger {
	opts := charmlog.Options{
		Level:           charmlog.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	switch LogFormat(strings.ToLower(string(format))) {
	case LogFormatJSON:
		opts.Formatter = charmlog.JSONFormatter
	case LogFormatLogfmt:
		opts.Formatter = charmlog.LogfmtFormatter
	default:
		opts.Formatter = charmlog.TextFormatter
		opts.TimeFormat = time.TimeOnly
	}
	return slog.New(charmlog.NewWithOptions(w, opts))
}
