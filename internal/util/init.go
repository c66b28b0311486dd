// Package util provides utility functions for initialization and configuration.
package util

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/grassrootseconomics/supply-snapshot/pkg/token"
	"github.com/kamikazechaser/common/logg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// envDebug enables debug logging when set
	envDebug = "DEBUG"
	// envDev enables development mode (human-readable logs) when set
	envDev = "DEV"
	// envPrefix is the prefix for environment variables that override config
	envPrefix = "SNAPSHOT_"
	// envSeparator is used to split array values in environment variables
	envSeparator = " "
	// envNestedSeparator is used to represent nested config keys in environment variables
	envNestedSeparator = "__"
)

// InitLogger initializes and returns a structured logger based on environment variables.
// DEBUG: enables debug level logging
// DEV: enables debug level logging with human-readable format
func InitLogger() *slog.Logger {
	loggOpts := logg.LoggOpts{
		FormatType: logg.Logfmt,
		LogLevel:   slog.LevelInfo,
	}

	if os.Getenv(envDebug) != "" {
		loggOpts.LogLevel = slog.LevelDebug
	}

	if os.Getenv(envDev) != "" {
		loggOpts.LogLevel = slog.LevelDebug
		loggOpts.FormatType = logg.Human
	}

	return logg.NewLogg(loggOpts)
}

// InitConfig loads configuration from a TOML file and environment variables.
// Environment variables prefixed with SNAPSHOT_ override file values.
// Nested keys can be specified using double underscores (e.g., SNAPSHOT_CHAIN__RPC_ENDPOINT).
// Array values can be specified as space-separated strings.
func InitConfig(lo *slog.Logger, confFilePath string) *koanf.Koanf {
	ko := koanf.New(".")

	// Load configuration file
	confFile := file.Provider(confFilePath)
	if err := ko.Load(confFile, toml.Parser()); err != nil {
		lo.Error("failed to load configuration file", "file", confFilePath, "error", err)
		os.Exit(1)
	}

	// Load environment variable overrides
	err := ko.Load(env.ProviderWithValue(envPrefix, ".", func(s string, v string) (string, interface{}) {
		// Convert SNAPSHOT_KEY__NESTED to key.nested
		key := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			envNestedSeparator,
			".",
		)

		// Handle array values (space-separated)
		if strings.Contains(v, envSeparator) {
			return key, strings.Split(v, envSeparator)
		}

		return key, v
	}), nil)

	if err != nil {
		lo.Error("failed to load environment variable overrides", "error", err)
		os.Exit(1)
	}

	// Print configuration in debug mode
	if os.Getenv(envDebug) != "" {
		ko.Print()
	}

	return ko
}

// LoadTokens unmarshals and validates the configured token table.
func LoadTokens(lo *slog.Logger, ko *koanf.Koanf) []token.Token {
	var tokens []token.Token
	if err := ko.Unmarshal("tokens", &tokens); err != nil {
		lo.Error("failed to unmarshal token table", "error", err)
		os.Exit(1)
	}

	if err := token.ValidateSet(tokens); err != nil {
		lo.Error("invalid token table", "error", err)
		os.Exit(1)
	}

	return tokens
}

// LoadDateRange parses the configured snapshot date range. Dates are
// YYYY-MM-DD, interpreted as UTC midnights. An empty end date defaults to the
// current UTC date; an empty start date defaults to days_back days before the
// end date.
func LoadDateRange(lo *slog.Logger, ko *koanf.Koanf) (time.Time, time.Time) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := ko.String("snapshot.end_date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			lo.Error("invalid snapshot.end_date, must be YYYY-MM-DD", "value", raw, "error", err)
			os.Exit(1)
		}
		end = parsed
	}

	var start time.Time
	if raw := ko.String("snapshot.start_date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			lo.Error("invalid snapshot.start_date, must be YYYY-MM-DD", "value", raw, "error", err)
			os.Exit(1)
		}
		start = parsed
	} else {
		daysBack := ko.Int("snapshot.days_back")
		if daysBack <= 0 {
			lo.Error("either snapshot.start_date or a positive snapshot.days_back is required")
			os.Exit(1)
		}
		start = end.AddDate(0, 0, -daysBack)
	}

	if start.After(end) {
		lo.Error("snapshot.start_date is after snapshot.end_date",
			"start", start.Format(time.DateOnly),
			"end", end.Format(time.DateOnly),
		)
		os.Exit(1)
	}

	return start, end
}
