package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug]. Model clients log full
// request and response payloads at this level.
const LevelTrace = slog.Level(-8)

// redactedKeys are attribute keys whose values never reach the log.
var redactedKeys = map[string]bool{
	"api_key":    true,
	"credential": true,
	"jwt_secret": true,
	"password":   true,
	"token":      true,
}

// ParseLogLevel maps a log_level value to an [slog.Level]. Matching is
// case-insensitive; empty means info and "warning" is accepted for warn.
func ParseLogLevel(s string) (slog.Level, error) {
	switch level := strings.ToLower(strings.TrimSpace(s)); level {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q must be one of trace, debug, info, warn, error", s)
	}
}

// ReplaceLogLevelNames is the ReplaceAttr hook for every Square15 handler.
// It prints [LevelTrace] as TRACE rather than DEBUG-4 and masks the
// values of secret-bearing keys.
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.LevelKey:
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	case redactedKeys[strings.ToLower(a.Key)]:
		a.Value = slog.StringValue("[redacted]")
	}
	return a
}

// NewLogger builds a logger writing to w. Any format other than "json"
// produces text output.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLogLevelNames}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Logger builds the logger described by log_level and log_format.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return NewLogger(w, level, c.LogFormat), nil
}
