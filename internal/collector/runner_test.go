package collector

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecRunner_CapturesBothStreams(t *testing.T) {
	sh := requireShell(t)

	out, err := ExecRunner{}.Run(context.Background(), sh, "-c", "echo out; echo err >&2")

	require.NoError(t, err)
	assert.Equal(t, "out\n", string(out.Stdout))
	assert.Equal(t, "err\n", string(out.Stderr))
}

func TestExecRunner_ExitError(t *testing.T) {
	sh := requireShell(t)

	out, err := ExecRunner{}.Run(context.Background(), sh, "-c", "echo partial; exit 3")

	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, "partial\n", string(out.Stdout))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "/nonexistent/metricd-test-bin")

	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}

func TestExecRunner_TimeoutKillsProcessGroup(t *testing.T) {
	sh := requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	// The background sleep keeps the stdout pipe open unless the whole
	// group is killed.
	_, err := ExecRunner{WaitDelay: 5 * time.Second}.Run(ctx, sh, "-c", "sleep 30 & sleep 30")

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 4*time.Second)
}
