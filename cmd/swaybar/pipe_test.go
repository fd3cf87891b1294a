package main

import (
	"bytes"
	stderrors "errors"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedStdoutConfigEnv carries the config path into the re-executed test
// binary, which then runs the bar with fd 1 connected to a dead pipe.
const closedStdoutConfigEnv = "SWAYBAR_TEST_CLOSED_STDOUT_CONFIG"

func TestClosedStdoutExitsWithError(t *testing.T) {
	if path := os.Getenv(closedStdoutConfigEnv); path != "" {
		os.Exit(execute([]string{"--config", path}, os.Stdin, os.Stdout, os.Stderr))
	}
	if runtime.GOOS == "windows" {
		t.Skip("SIGPIPE is a unix signal")
	}

	path := writeConfig(t, "shutdown_timeout: 2s\nmodules:\n  - kind: clock\n    name: time\n")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	var stderr bytes.Buffer
	cmd := exec.Command(os.Args[0], "-test.run=^TestClosedStdoutExitsWithError$")
	cmd.Env = append(os.Environ(), closedStdoutConfigEnv+"="+path)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	require.NoError(t, cmd.Start())
	require.NoError(t, w.Close())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err = <-done:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("bar did not exit after its stdout closed")
	}

	var exitErr *exec.ExitError
	require.True(t, stderrors.As(err, &exitErr), "expected a non-zero exit, got %v\nstderr:\n%s", err, stderr.String())
	assert.Equal(t, 1, exitErr.ExitCode(), "the process must exit, not die from SIGPIPE\nstderr:\n%s", stderr.String())
	assert.Contains(t, stderr.String(), "Output failed")
	assert.Contains(t, stderr.String(), "broken_pipe=true")
}
