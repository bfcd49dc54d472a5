package runner

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	skipOnWindows(t)
	var r ExecRunner

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ReturnCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)
	var r ExecRunner

	res, err := r.Run(context.Background(), []string{"sh", "-c", "exit 3"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReturnCode)
}

func TestRunMissingBinary(t *testing.T) {
	var r ExecRunner
	_, err := r.Run(context.Background(), []string{"definitely-not-a-binary-xyz"}, RunOptions{})
	assert.Error(t, err)
}

func TestRunEmptyArgv(t *testing.T) {
	var r ExecRunner
	_, err := r.Run(context.Background(), nil, RunOptions{})
	assert.ErrorIs(t, err, ErrEmptyArgv)
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	var r ExecRunner

	start := time.Now()
	_, err := r.Run(context.Background(), []string{"sleep", "10"}, RunOptions{Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPopenCommunicate(t *testing.T) {
	skipOnWindows(t)
	var r ExecRunner

	res, err := r.PopenCommunicate(context.Background(), []string{"sh", "-c", "printf hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
	assert.Equal(t, 0, res.ReturnCode)
}
