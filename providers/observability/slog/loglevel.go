package slog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// GetLogLevelFromEnv reads SESH_LOG_LEVEL, then LOG_LEVEL. Unset or
// unparsable values yield INFO.
func GetLogLevelFromEnv() slog.Level {
	value := os.Getenv("SESH_LOG_LEVEL")
	if value == "" {
		value = os.Getenv("LOG_LEVEL")
	}
	level, err := ParseLogLevel(value)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel parses DEBUG, INFO, WARN, WARNING or ERROR, ignoring case.
// The empty string is INFO.
func ParseLogLevel(value string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (use debug, info, warn or error)", value)
	}
}
