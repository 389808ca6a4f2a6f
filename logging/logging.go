// Package logging holds the process wide log level and a compact text handler
// that prefixes each line with the instance emitting it.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

var globalLevel = &slog.LevelVar{}

func SetLevel(level slog.Level) {
	globalLevel.Set(level)
}

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
