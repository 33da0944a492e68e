package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/nodekit/errors"
)

// Transport kinds
const (
	TransportMemory = "memory" // in-process bus, single node
	TransportNATS   = "nats"   // JSON messages on NATS subjects
)

// Parameter store kinds
const (
	StoreMemory = "memory" // process-local, lost on exit
	StoreKV     = "kv"     // JetStream KV bucket shared by all nodes
)

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true, "fatal": true,
}

// Config is the complete node configuration
type Config struct {
	Node       NodeConfig       `json:"node"`
	Transport  TransportConfig  `json:"transport"`
	Parameters ParametersConfig `json:"parameters"`
	Log        LogConfig        `json:"log"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// NodeConfig identifies the node on the middleware
type NodeConfig struct {
	Name            string        `json:"name"`
	Namespace       string        `json:"namespace,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"`
}

// TransportConfig selects the pub/sub implementation
type TransportConfig struct {
	Kind string     `json:"kind"`
	NATS NATSConfig `json:"nats,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	PingInterval  time.Duration `json:"ping_interval,omitempty"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// ParametersConfig selects the parameter store
type ParametersConfig struct {
	Store  string `json:"store"`
	Bucket string `json:"bucket,omitempty"` // KV bucket name
}

// LogConfig controls the log sink
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
	Rosout bool   `json:"rosout"` // mirror component logs to /rosout
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Validate checks the config and normalizes kind names
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "node.name is required")
	}
	if strings.ContainsAny(c.Node.Name, "/ ") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: node.name %q must not contain '/' or spaces", errors.ErrInvalidConfig, c.Node.Name),
			"Config", "Validate", "node name check")
	}
	if c.Node.ShutdownTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: node.shutdown_timeout must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "shutdown timeout check")
	}

	c.Transport.Kind = strings.ToLower(c.Transport.Kind)
	switch c.Transport.Kind {
	case TransportMemory:
	case TransportNATS:
		if len(c.Transport.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "transport.nats.urls is required")
		}
		if c.Transport.NATS.PingInterval < 0 || c.Transport.NATS.DrainTimeout < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: transport.nats ping_interval and drain_timeout must not be negative", errors.ErrInvalidConfig),
				"Config", "Validate", "nats timing check")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown transport.kind %q", errors.ErrInvalidConfig, c.Transport.Kind),
			"Config", "Validate", "transport check")
	}

	c.Parameters.Store = strings.ToLower(c.Parameters.Store)
	switch c.Parameters.Store {
	case StoreMemory:
	case StoreKV:
		if c.Transport.Kind != TransportNATS {
			return errors.WrapInvalid(
				fmt.Errorf("%w: parameters.store kv needs transport.kind nats", errors.ErrInvalidConfig),
				"Config", "Validate", "parameter store check")
		}
		if c.Parameters.Bucket == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "parameters.bucket is required")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown parameters.store %q", errors.ErrInvalidConfig, c.Parameters.Store),
			"Config", "Validate", "parameter store check")
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown log.level %q", errors.ErrInvalidConfig, c.Log.Level),
			"Config", "Validate", "log level check")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: log.format must be json or text", errors.ErrInvalidConfig),
			"Config", "Validate", "log format check")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "metrics.addr is required")
	}
	return nil
}

// Apply overrides node identity and log level from special command line
// arguments.
func (c *Config) Apply(args Args) {
	if v, ok := args.Special["__node"]; ok {
		c.Node.Name = v
	}
	if v, ok := args.Special["__ns"]; ok {
		c.Node.Namespace = v
	}
	if v, ok := args.Special["__log_level"]; ok {
		c.Log.Level = v
	}
}

// String returns the config as JSON with credentials redacted
func (c *Config) String() string {
	redacted := *c
	redacted.Transport.NATS.Password = redact(c.Transport.NATS.Password)
	redacted.Transport.NATS.Token = redact(c.Transport.NATS.Token)
	data, err := json.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("Config{node=%s}", c.Node.Name)
	}
	return string(data)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
