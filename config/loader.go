package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "NODEKIT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
		getenv:    os.Getenv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer in order and the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the configuration used when no file sets a value
func Defaults() *Config {
	return &Config{
		Node: NodeConfig{
			Name:            "nodekit",
			ShutdownTimeout: 5 * time.Second,
		},
		Transport: TransportConfig{
			Kind: TransportMemory,
			NATS: NATSConfig{
				URLs:          []string{"nats://localhost:4222"},
				MaxReconnects: -1,
				ReconnectWait: 2 * time.Second,
				PingInterval:  30 * time.Second,
				DrainTimeout:  10 * time.Second,
			},
		},
		Parameters: ParametersConfig{
			Store:  StoreMemory,
			Bucket: "nodekit_params",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Rosout: true,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// loadRawJSON loads a layer as a map with durations converted
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap merges only the fields present in override
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// durationPaths lists the fields written as duration strings in files
var durationPaths = [][]string{
	{"node", "shutdown_timeout"},
	{"transport", "nats", "reconnect_wait"},
	{"transport", "nats", "ping_interval"},
	{"transport", "nats", "drain_timeout"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for _, path := range durationPaths {
		m := data
		for _, key := range path[:len(path)-1] {
			next, ok := m[key].(map[string]any)
			if !ok {
				m = nil
				break
			}
			m = next
		}
		if m == nil {
			continue
		}
		last := path[len(path)-1]
		s, ok := m[last].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		m[last] = d.Nanoseconds()
	}
	return nil
}

// applyEnvOverrides applies NODEKIT_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(key string) (string, error) {
		name := l.envPrefix + "_" + key
		val := l.getenv(name)
		return val, validateEnvVar(name, val)
	}

	strs := []struct {
		key    string
		target *string
	}{
		{"NODE_NAME", &cfg.Node.Name},
		{"NODE_NAMESPACE", &cfg.Node.Namespace},
		{"TRANSPORT", &cfg.Transport.Kind},
		{"NATS_USERNAME", &cfg.Transport.NATS.Username},
		{"NATS_PASSWORD", &cfg.Transport.NATS.Password},
		{"NATS_TOKEN", &cfg.Transport.NATS.Token},
		{"PARAM_STORE", &cfg.Parameters.Store},
		{"PARAM_BUCKET", &cfg.Parameters.Bucket},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"METRICS_ADDR", &cfg.Metrics.Addr},
	}
	for _, s := range strs {
		val, err := env(s.key)
		if err != nil {
			return err
		}
		if val != "" {
			*s.target = val
		}
	}

	val, err := env("NATS_URLS")
	if err != nil {
		return err
	}
	if val != "" {
		cfg.Transport.NATS.URLs = strings.Split(val, ",")
	}

	val, err = env("METRICS_ENABLED")
	if err != nil {
		return err
	}
	if val != "" {
		enabled, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("%s_METRICS_ENABLED: %w", l.envPrefix, perr)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}
