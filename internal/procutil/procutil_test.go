package procutil

// ============================================================================
// Process Lifecycle test file
// Purpose: verify exit-code capture, Wait/Poll semantics, and graceful
// terminate-then-kill behavior.
// ============================================================================

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_CapturesZeroExitCode(t *testing.T) {
	h, err := Start(context.Background(), t.TempDir(), "true")
	require.NoError(t, err)

	code, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, h.Poll())
}

func TestStart_CapturesNonzeroExitCode(t *testing.T) {
	h, err := Start(context.Background(), t.TempDir(), "sh", "-c", "exit 3")
	require.NoError(t, err)

	code, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestTerminate_GracefulExit(t *testing.T) {
	h, err := StartWithGrace(context.Background(), t.TempDir(), 2*time.Second, "sh", "-c",
		"trap 'exit 0' TERM; sleep 30")
	require.NoError(t, err)

	err = h.Terminate(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Poll())
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	h, err := StartWithGrace(context.Background(), t.TempDir(), 200*time.Millisecond, "sh", "-c",
		"trap '' TERM; sleep 30")
	require.NoError(t, err)

	start := time.Now()
	err = h.Terminate(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Poll())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	h, err := Start(context.Background(), t.TempDir(), "true")
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	err = h.Terminate(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyExited)
}
