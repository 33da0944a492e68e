package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodekit/errors"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportMemory, cfg.Transport.Kind)
	assert.Equal(t, StoreMemory, cfg.Parameters.Store)
	assert.Equal(t, 5*time.Second, cfg.Node.ShutdownTimeout)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "talker.json", `{
		"node": {"name": "talker", "namespace": "/demo", "shutdown_timeout": "3s"},
		"transport": {
			"kind": "nats",
			"nats": {"urls": ["nats://a:4222", "nats://b:4222"], "reconnect_wait": "500ms", "ping_interval": "15s"}
		},
		"parameters": {"store": "kv"},
		"log": {"level": "debug", "format": "text"}
	}`)

	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "talker", cfg.Node.Name)
	assert.Equal(t, "/demo", cfg.Node.Namespace)
	assert.Equal(t, 3*time.Second, cfg.Node.ShutdownTimeout)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Transport.NATS.URLs)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.NATS.ReconnectWait)
	assert.Equal(t, 15*time.Second, cfg.Transport.NATS.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.Transport.NATS.DrainTimeout, "unset drain_timeout keeps the default")
	assert.Equal(t, -1, cfg.Transport.NATS.MaxReconnects, "unset fields keep defaults")
	assert.Equal(t, "nodekit_params", cfg.Parameters.Bucket)
	assert.True(t, cfg.Log.Rosout)
}

func TestLoader_Layers(t *testing.T) {
	base := writeConfig(t, "base.json", `{"node": {"name": "base"}, "log": {"level": "warn"}}`)
	override := writeConfig(t, "override.json", `{"node": {"name": "override"}}`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.Node.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_LayerChangesOnlyNamedFields(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"log": {"format": "text"}, "transport": {"nats": {"max_reconnects": 3}}}`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	want := Defaults()
	want.Log.Format = "text"
	want.Transport.NATS.MaxReconnects = 3
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"NODEKIT_NODE_NAME":       "listener",
		"NODEKIT_TRANSPORT":       "nats",
		"NODEKIT_NATS_URLS":       "nats://x:4222,nats://y:4222",
		"NODEKIT_METRICS_ENABLED": "true",
	})
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "listener", cfg.Node.Name)
	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, []string{"nats://x:4222", "nats://y:4222"}, cfg.Transport.NATS.URLs)
	assert.True(t, cfg.Metrics.Enabled)

	bad := newTestLoader(map[string]string{"NODEKIT_METRICS_ENABLED": "maybe"})
	_, err = bad.Load()
	assert.Error(t, err)
}

func TestLoader_RejectsBadFiles(t *testing.T) {
	l := newTestLoader(nil)

	_, err := l.LoadFile("../secrets.json")
	assert.ErrorContains(t, err, "path traversal")

	_, err = l.LoadFile(writeConfig(t, "config.yaml", "node: {}"))
	assert.ErrorContains(t, err, "only JSON")

	_, err = l.LoadFile(writeConfig(t, "bad.json", `{"node": {"shutdown_timeout": "soon"}}`))
	assert.ErrorContains(t, err, "node.shutdown_timeout")

	_, err = l.LoadFile(writeConfig(t, "open.json", `{"node": {`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing name", func(c *Config) { c.Node.Name = "" }, false},
		{"slash in name", func(c *Config) { c.Node.Name = "a/b" }, false},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "zenoh" }, false},
		{"kv needs nats", func(c *Config) { c.Parameters.Store = StoreKV }, false},
		{"kv with nats", func(c *Config) {
			c.Transport.Kind = "NATS"
			c.Parameters.Store = StoreKV
		}, true},
		{"nats without urls", func(c *Config) {
			c.Transport.Kind = TransportNATS
			c.Transport.NATS.URLs = nil
		}, false},
		{"negative ping interval", func(c *Config) {
			c.Transport.Kind = TransportNATS
			c.Transport.NATS.PingInterval = -time.Second
		}, false},
		{"zero drain timeout keeps client default", func(c *Config) {
			c.Transport.Kind = TransportNATS
			c.Transport.NATS.DrainTimeout = 0
		}, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestApplySpecialArgs(t *testing.T) {
	cfg := Defaults()
	cfg.Apply(ParseArgs([]string{"__node:=lidar", "__ns:=/robot", "__log_level:=debug"}))

	assert.Equal(t, "lidar", cfg.Node.Name)
	assert.Equal(t, "/robot", cfg.Node.Namespace)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Transport.NATS.Password = "hunter2"
	cfg.Transport.NATS.Token = "s3cret"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cret")
	assert.Contains(t, s, `"name":"nodekit"`)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "}}}"}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [1, 2}`)))

	deep := make([]byte, 0, 2*(maxJSONDepth+1))
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, '[')
	}
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, ']')
	}
	assert.ErrorContains(t, validateJSONDepth(deep), "too deep")
}
