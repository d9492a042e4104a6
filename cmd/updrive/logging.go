package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"updrive/internal/config"
)

const (
	logLevelEnvKey  = "UPDRIVE_LOG_LEVEL"
	logFormatEnvKey = "UPDRIVE_LOG_FORMAT"
)

// logSource names where the effective level came from.
type logSource string

const (
	logSourceFlag    logSource = "flag"
	logSourceEnv     logSource = "env"
	logSourceConfig  logSource = "config"
	logSourceDefault logSource = "default"
)

// configureLoggerForCLI installs the default slog logger. An invalid flag is
// an error; an invalid env or config value falls back to the default level
// and returns a warning line for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	raw, source := selectedLogLevel(flagLevel, envLevel, configLevel)
	level, err := parseLogLevel(raw)
	if err == nil {
		slog.SetDefault(newLogger(os.Stderr, level, os.Getenv(logFormatEnvKey)))
		return "", nil
	}
	if source == logSourceFlag {
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	}

	fallback, _ := parseLogLevel("")
	slog.SetDefault(newLogger(os.Stderr, fallback, os.Getenv(logFormatEnvKey)))
	switch source {
	case logSourceEnv:
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	case logSourceConfig:
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	}
	return "", nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, logSource) {
	switch {
	case strings.TrimSpace(flagLevel) != "":
		return flagLevel, logSourceFlag
	case strings.TrimSpace(envLevel) != "":
		return envLevel, logSourceEnv
	case strings.TrimSpace(configLevel) != "":
		return configLevel, logSourceConfig
	}
	return "", logSourceDefault
}

// parseLogLevel accepts slog names, "warning", and numeric levels. Empty
// means the configured default.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// newLogger builds a text handler, or a JSON handler when format is "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
