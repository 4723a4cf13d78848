package main

import (
	"fmt"
	"os"

	"github.com/tickerdesk/tickerdesk/pkg/config"
	"github.com/tickerdesk/tickerdesk/pkg/logger"
)

// Log settings resolve in priority order: CLI flags, then environment
// variables, then the config file's logger section, then defaults.
const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"

	defaultLogLevel  = "info"
	defaultLogFormat = "simple"
)

// initLoggerFromCLI initializes the logger from CLI flags and
// environment variables. Returns a cleanup func when logging to a file.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := firstNonEmpty(cliLogLevel, os.Getenv(logLevelEnvVar), defaultLogLevel)
	logFile := firstNonEmpty(cliLogFile, os.Getenv(logFileEnvVar))
	logFormat := firstNonEmpty(cliLogFormat, os.Getenv(logFormatEnvVar), defaultLogFormat)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}

// applyConfigLogger re-initializes the logger from the config file's
// logger section, unless CLI flags or environment variables already
// chose the settings.
func applyConfigLogger(cli *CLI, cfg *config.LoggerConfig) {
	if cli.LogLevel != "" || cli.LogFile != "" || cli.LogFormat != "" {
		return
	}
	if os.Getenv(logLevelEnvVar) != "" || os.Getenv(logFileEnvVar) != "" || os.Getenv(logFormatEnvVar) != "" {
		return
	}
	if cfg == nil {
		return
	}

	level, err := logger.ParseLevel(firstNonEmpty(cfg.Level, defaultLogLevel))
	if err != nil {
		return
	}

	output := os.Stderr
	if cfg.File != "" {
		file, _, err := logger.OpenLogFile(cfg.File)
		if err != nil {
			return
		}
		output = file
	}

	logger.Init(level, output, firstNonEmpty(cfg.Format, defaultLogFormat))
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
