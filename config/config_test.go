package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/swaybar/bus"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/module"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `
aggregator:
  min_interval: 250ms
backoff:
  initial: 2s
  max: 1m
  max_attempts: 5
modules:
  - kind: poll
    name: weather
    poll:
      url: http://localhost:8080/weather
      field: current.temp
      interval: 10m
      timeout: 3s
  - kind: clock
    name: time
    instance: utc
    clock:
      format: "15:04"
      timezone: UTC
`

const tomlConfig = `
[aggregator]
min_interval = "250ms"

[backoff]
initial = "2s"
max = "1m"
max_attempts = 5

[[modules]]
kind = "poll"
name = "weather"
  [modules.poll]
  url = "http://localhost:8080/weather"
  field = "current.temp"
  interval = "10m"
  timeout = "3s"

[[modules]]
kind = "clock"
name = "time"
instance = "utc"
  [modules.clock]
  format = "15:04"
  timezone = "UTC"
`

const jsonConfig = `{
  "aggregator": {"min_interval": "250ms"},
  "backoff": {"initial": "2s", "max": "1m", "max_attempts": 5},
  "modules": [
    {"kind": "poll", "name": "weather", "poll": {
      "url": "http://localhost:8080/weather", "field": "current.temp",
      "interval": "10m", "timeout": "3s"}},
    {"kind": "clock", "name": "time", "instance": "utc",
     "clock": {"format": "15:04", "timezone": "UTC"}}
  ]
}`

func expectedConfig() *Config {
	cfg := Default()
	cfg.Aggregator.MinInterval = 250 * time.Millisecond
	cfg.Backoff.Initial = 2 * time.Second
	cfg.Backoff.Max = time.Minute
	cfg.Backoff.MaxAttempts = 5
	cfg.Modules = []module.Spec{
		{
			Kind: module.KindPoll,
			Name: "weather",
			Poll: &module.PollOptions{
				URL:      "http://localhost:8080/weather",
				Field:    "current.temp",
				Interval: 10 * time.Minute,
				Timeout:  3 * time.Second,
			},
		},
		{
			Kind:     module.KindClock,
			Name:     "time",
			Instance: "utc",
			Clock:    &module.ClockOptions{Format: "15:04", Timezone: "UTC"},
		},
	}
	return cfg
}

func TestLoader_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", yamlConfig},
		{"yml", "config.yml", yamlConfig},
		{"toml", "config.toml", tomlConfig},
		{"json", "config.json", jsonConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)

			cfg, err := NewLoader().LoadFile(path)
			require.NoError(t, err)

			if diff := cmp.Diff(expectedConfig(), cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoader_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "modules:\n  - kind: clock\n    name: time\n")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Protocol.ClickEvents)
	assert.Equal(t, 64, cfg.Aggregator.UpdateBuffer)
	assert.Equal(t, 8, cfg.Aggregator.ClickQueue)
	assert.Zero(t, cfg.Aggregator.MinInterval)
	assert.Equal(t, time.Second, cfg.Backoff.Initial)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Equal(t, 20, cfg.Backoff.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Zero(t, cfg.Metrics.Port)
	require.Len(t, cfg.Modules, 1)
}

func TestLoader_LayersMerge(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", `
backoff:
  initial: 2s
  max_attempts: 5
modules:
  - kind: clock
    name: a
  - kind: clock
    name: b
`)
	override := writeFile(t, dir, "override.json", `{
  "backoff": {"max_attempts": 9},
  "modules": [{"kind": "static", "name": "c", "static": {"text": "hi"}}]
}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Backoff.Initial, "untouched keys survive")
	assert.Equal(t, 9, cfg.Backoff.MaxAttempts)
	require.Len(t, cfg.Modules, 1, "lists are replaced, not appended")
	assert.Equal(t, "c", cfg.Modules[0].Name)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "modules:\n  - kind: clock\n    name: time\n")

	t.Setenv("SWAYBAR_NATS_URL", "nats://bus:4222")
	t.Setenv("SWAYBAR_METRICS_PORT", "9102")
	t.Setenv("SWAYBAR_MIN_INTERVAL", "100ms")
	t.Setenv("SWAYBAR_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("SWAYBAR_CLICK_EVENTS", "false")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, 9102, cfg.Metrics.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Aggregator.MinInterval)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Protocol.ClickEvents)
}

const natsConfig = `
nats:
  url: nats://bus.lan:4222
  name: laptop-bar
  user: bar
  password: hunter2
  timeout: 2s
  drain_timeout: 1s
  reconnect_wait: 5s
  ping_interval: 1m
  max_reconnects: 10
modules:
  - kind: bus
    name: vol
    markup: pango
    short_format: "{{.Value}}"
    min_width: 80
    separator: false
    thresholds:
      - {above: 0.8, color: "#ff0000"}
    bus: {backend: nats, path: /audio, property: Volume}
  - kind: poll
    name: cpu
    poll:
      source: prometheus
      address: http://localhost:9090
      query: 'avg(rate(node_cpu_seconds_total{mode!="idle"}[1m]))'
      range: 30m
      step: 1m
`

func TestLoader_NATSAndStyleSections(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", natsConfig)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, bus.NATSConfig{
		URL:           "nats://bus.lan:4222",
		Name:          "laptop-bar",
		User:          "bar",
		Password:      "hunter2",
		Timeout:       2 * time.Second,
		DrainTimeout:  time.Second,
		ReconnectWait: 5 * time.Second,
		PingInterval:  time.Minute,
		MaxReconnects: 10,
	}, cfg.NATS.BusConfig())

	require.Len(t, cfg.Modules, 2)
	vol := cfg.Modules[0]
	assert.Equal(t, module.MarkupPango, vol.Markup)
	assert.Equal(t, "{{.Value}}", vol.ShortFormat)
	assert.Equal(t, 80.0, vol.MinWidth)
	require.NotNil(t, vol.Separator)
	assert.False(t, *vol.Separator)
	assert.Equal(t, []module.Threshold{{Above: 0.8, Color: "#ff0000"}}, vol.Thresholds)

	cpu := cfg.Modules[1].Poll
	require.NotNil(t, cpu)
	assert.Equal(t, 30*time.Minute, cpu.Range)
	assert.Equal(t, time.Minute, cpu.Step)
}

func TestLoader_NATSSecretsFromEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "modules:\n  - kind: clock\n    name: time\n")

	t.Setenv("SWAYBAR_NATS_TOKEN", "s3cret")
	t.Setenv("SWAYBAR_NATS_USER", "bar")
	t.Setenv("SWAYBAR_NATS_PASSWORD", "hunter2")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.NATS.Token)
	assert.Equal(t, "bar", cfg.NATS.User)
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.NATS.Token = "s3cret"
	cfg.NATS.User = "bar"
	cfg.NATS.Password = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"user": "bar"`)
	assert.Contains(t, out, redacted)
	assert.Equal(t, "s3cret", cfg.NATS.Token, "String must not modify the config")
}

func TestLoader_BadEnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "modules:\n  - kind: clock\n    name: time\n")
	t.Setenv("SWAYBAR_METRICS_PORT", "ninety")

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "SWAYBAR_METRICS_PORT")
}

func TestLoader_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown top-level key", "c.yaml", "modulez: []\nmodules:\n  - {kind: clock, name: t}\n", "modulez"},
		{"unknown kind", "c.yaml", "modules:\n  - {kind: weather, name: t}\n", "kind"},
		{"missing name", "c.yaml", "modules:\n  - {kind: clock}\n", "name"},
		{"no modules", "c.yaml", "backoff:\n  initial: 1s\n", "no modules"},
		{"bad duration", "c.yaml", "shutdown_timeout: soon\nmodules:\n  - {kind: clock, name: t}\n", "shutdown_timeout"},
		{"bus without path", "c.json", `{"modules": [{"kind": "bus", "name": "b", "bus": {}}]}`, "path"},
		{"max below initial", "c.yaml", "backoff: {initial: 10s, max: 1s}\nmodules:\n  - {kind: clock, name: t}\n", "backoff.max"},
		{"static needs one source", "c.yaml", "modules:\n  - {kind: static, name: s, static: {}}\n", "exactly one"},
		{"bad color", "c.yaml", "modules:\n  - {kind: clock, name: t, color: red}\n", "color"},
		{"bad markup", "c.yaml", "modules:\n  - {kind: clock, name: t, markup: html}\n", "markup"},
		{"threshold without color", "c.yaml", "modules:\n  - {kind: clock, name: t, thresholds: [{above: 1}]}\n", "color"},
		{"password without user", "c.yaml", "nats: {password: hunter2}\nmodules:\n  - {kind: clock, name: t}\n", "nats.password"},
		{"max_reconnects below -1", "c.yaml", "nats: {max_reconnects: -2}\nmodules:\n  - {kind: clock, name: t}\n", "max_reconnects"},
		{"bad button", "c.yaml", "modules:\n  - {kind: static, name: s, static: {text: x, on_click: {left: ls}}}\n", "on_click"},
		{"malformed yaml", "c.yaml", "modules: [\n", "parsing"},
		{"unsupported extension", "c.ini", "x=1", "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)

			_, err := NewLoader().LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "error should be invalid-class: %v", err)
			assert.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.want))
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "backoff:\n  initial: 3s\n")

	loader := NewLoader()
	loader.EnableValidation(false)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Backoff.Initial)
	assert.Empty(t, cfg.Modules)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	_, err := DefaultPath()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	tomlPath := writeFile(t, dir, "swaybar/config.toml", tomlConfig)
	got, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, tomlPath, got)

	yamlPath := writeFile(t, dir, "swaybar/config.yaml", yamlConfig)
	got, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, yamlPath, got, "yaml is preferred")
}

func TestConfig_RetryConfig(t *testing.T) {
	cfg := Default()
	cfg.Backoff.Jitter = true

	rc := cfg.RetryConfig()
	assert.Equal(t, time.Second, rc.InitialDelay)
	assert.Equal(t, time.Minute, rc.MaxDelay)
	assert.Equal(t, 2.0, rc.Multiplier)
	assert.Equal(t, 20, rc.MaxAttempts)
	assert.True(t, rc.AddJitter)
}

func TestParseDurationWithDays(t *testing.T) {
	d, err := parseDurationWithDays("2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	d, err = parseDurationWithDays("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDurationWithDays("xd")
	assert.Error(t, err)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": ["[", {"b": "}"}]}`)))
	assert.Error(t, validateJSONDepth([]byte(strings.Repeat("[", maxJSONDepth+1)+strings.Repeat("]", maxJSONDepth+1))))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1`)))
	assert.Error(t, validateJSONDepth([]byte(`{}}`)))
}

func TestSchemaIsValidJSON(t *testing.T) {
	s, err := compiledSchema()
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.NotEmpty(t, Schema())
}
