package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Role            string
	ShutdownTimeout time.Duration
	MetricsAddr     string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

var validRoles = []string{"talker", "listener", "both"}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("NODEKIT_CONFIG", ""),
		"Path to configuration file (env: NODEKIT_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("NODEKIT_CONFIG", ""),
		"Path to configuration file (env: NODEKIT_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("NODEKIT_LOG_LEVEL", ""),
		"Log level: trace, debug, info, warn, error, fatal (env: NODEKIT_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("NODEKIT_LOG_FORMAT", ""),
		"Log format: json, text (env: NODEKIT_LOG_FORMAT)")

	fs.StringVar(&cfg.Role, "role",
		getEnv("NODEKIT_ROLE", "both"),
		"Demo components to run: talker, listener, both (env: NODEKIT_ROLE)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("NODEKIT_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, 0 keeps the configured value (env: NODEKIT_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr",
		getEnv("NODEKIT_METRICS_ADDR", ""),
		"Metrics listen address, enables the metrics server (env: NODEKIT_METRICS_ADDR)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate",
		getEnvBool("NODEKIT_VALIDATE", false),
		"Validate configuration and exit")

	fs.Usage = func() {
		printHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !contains(validRoles, cfg.Role) {
		return fmt.Errorf("invalid role: %s", cfg.Role)
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - declarative node runtime demo

Usage: %s [options] [name:=value ...]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Arguments after the options use the name:=value convention:
  __node:=name      override the node name
  __ns:=namespace   override the node namespace
  __log_level:=lvl  override the log level
  _param:=value     seed a parameter before start
  from:=to          remap a topic

Examples:
  # Talker and listener on the in-process bus
  %s

  # Listener only, on NATS, with a remapped topic
  NODEKIT_TRANSPORT=nats %s --role=listener chatter:=/robot/chatter

  # Override the greeting parameter
  %s --role=talker _greeting:=hi

  # Validate configuration only
  %s --config=/etc/nodekit/config.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
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
