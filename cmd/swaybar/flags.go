package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Debug       bool
	MetricsPort int
	Validate    bool
}

// bindFlags registers the flags on fs. Every flag except --validate falls
// back to a SWAYBAR_* environment variable.
func bindFlags(fs *pflag.FlagSet, cfg *CLIConfig) {
	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("SWAYBAR_CONFIG", ""),
		"Path to configuration file; default searches $XDG_CONFIG_HOME/swaybar (env: SWAYBAR_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SWAYBAR_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SWAYBAR_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SWAYBAR_LOG_FORMAT", "text"),
		"Log format: json, text (env: SWAYBAR_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("SWAYBAR_DEBUG", false),
		"Shorthand for --log-level=debug (env: SWAYBAR_DEBUG)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("SWAYBAR_METRICS_PORT", -1),
		"Prometheus metrics port, 0 to disable, -1 to use the config file (env: SWAYBAR_METRICS_PORT)")

	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < -1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
