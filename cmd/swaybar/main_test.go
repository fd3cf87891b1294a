package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsEnvFallback(t *testing.T) {
	t.Setenv("SWAYBAR_LOG_LEVEL", "warn")
	t.Setenv("SWAYBAR_METRICS_PORT", "9102")

	cli := &CLIConfig{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, cli)
	require.NoError(t, fs.Parse([]string{"--log-format=json", "-c", "bar.yaml"}))

	assert.Equal(t, "warn", cli.LogLevel)
	assert.Equal(t, "json", cli.LogFormat)
	assert.Equal(t, 9102, cli.MetricsPort)
	assert.Equal(t, "bar.yaml", cli.ConfigPath)
}

func TestValidateFlags(t *testing.T) {
	base := func() *CLIConfig {
		return &CLIConfig{LogLevel: "info", LogFormat: "text", MetricsPort: -1}
	}

	assert.NoError(t, validateFlags(base()))

	cfg := base()
	cfg.Debug = true
	require.NoError(t, validateFlags(cfg))
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg = base()
	cfg.LogLevel = "loud"
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.LogFormat = "xml"
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.MetricsPort = 70000
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, validateFlags(cfg))
}

func TestSetupLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger("info", "json", &buf)
	logger.Debug("hidden")
	logger.Info("hello")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "swaybar", rec["service"])
	assert.Equal(t, Version, rec["version"])
	assert.NotEmpty(t, rec["run_id"])
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateOnly(t *testing.T) {
	path := writeConfig(t, "modules:\n  - kind: clock\n    name: time\n")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs([]string{"--config", path, "--validate"})

	require.NoError(t, cmd.Execute())
	assert.Empty(t, stdout.String(), "nothing but the status stream may reach stdout")
	assert.Contains(t, stderr.String(), "Configuration is valid")
}

func TestInvalidConfigFails(t *testing.T) {
	path := writeConfig(t, "modules:\n  - kind: nope\n    name: time\n")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs([]string{"--config", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunUntilInputCloses(t *testing.T) {
	path := writeConfig(t, "shutdown_timeout: 2s\nmodules:\n  - kind: static\n    name: hello\n    static:\n      text: hi\n")

	inR, inW := io.Pipe()
	out := &lockedBuffer{}
	var stderr lockedBuffer
	cmd := newRootCmd(inR, out, &stderr)
	cmd.SetArgs([]string{"--config", path, "--metrics-port", "0"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"full_text":"hi"`)
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasPrefix(out.String(), "{\"version\":1,\"click_events\":true}\n[\n"))

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not exit after stdin closed")
	}
}

func TestSchemaCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs([]string{"schema"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "object", doc["type"])
}
