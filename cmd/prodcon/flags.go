package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/c360/prodcon/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	Preset      string
	Duration    time.Duration
	Seed        int64
	LogLevel    string
	LogFormat   string
	MetricsPort int
	ShowVersion bool
	Validate    bool
}

func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("PRODCON_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: PRODCON_CONFIG)")

	fs.StringVar(&cfg.Preset, "preset",
		getEnv("PRODCON_PRESET", config.PresetBasic),
		"Base preset: basic, blocking, faulty, improved (env: PRODCON_PRESET)")

	fs.DurationVar(&cfg.Duration, "duration", 0,
		"Run duration, overrides the configuration when set")

	fs.Int64Var(&cfg.Seed, "seed",
		getEnvInt64("PRODCON_SEED", 0),
		"Seed for fault coin flips, 0 for a random seed (env: PRODCON_SEED)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("PRODCON_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: PRODCON_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("PRODCON_LOG_FORMAT", "text"),
		"Log format: json, text (env: PRODCON_LOG_FORMAT)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0,
		"Serve Prometheus metrics on this port, overrides the configuration when set")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains(config.PresetNames(), cfg.Preset) {
		return fmt.Errorf("invalid preset: %s", cfg.Preset)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Duration < 0 {
		return fmt.Errorf("invalid duration: %s", cfg.Duration)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - bounded-buffer producer/consumer runner

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Five seconds of one producer and one consumer on a five-slot ring
  %s

  # Coin-flip faults with linear backoff, reproducible
  %s -preset=improved -seed=7

  # Preset plus file overrides, with Prometheus metrics
  %s -preset=faulty -config=configs/local.yaml -metrics-port=9090

  # Validate configuration only
  %s -config=configs/local.yaml -validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
