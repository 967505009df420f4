package examplejob

// ============================================================================
// Example fixtures test file
// Purpose: verify the fixtures' own behavior in isolation (threshold
// convergence, uncorrectable detection, always-bad validator) before
// internal/supervisor drives them through a full run.
// ============================================================================

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleHandler_FiresUntilThresholdReached(t *testing.T) {
	counter := &Counter{}
	h := NewExampleHandler(counter, 50, 10)

	fired := 0
	for {
		detected, err := h.Check(context.Background(), t.TempDir())
		require.NoError(t, err)
		if !detected {
			break
		}
		_, err = h.Correct(context.Background(), t.TempDir())
		require.NoError(t, err)
		fired++
		require.Less(t, fired, 100, "handler should converge well within 100 corrections")
	}
	assert.GreaterOrEqual(t, counter.Load(), int64(50))
	assert.Equal(t, fired, h.AppliedCorrections())
}

func TestExampleHandler_MaxNumCorrections(t *testing.T) {
	counter := &Counter{}
	h := NewExampleHandler(counter, 1000, 1).WithMaxNumCorrections(2, true)
	assert.Equal(t, 2, h.MaxNumCorrections())
	assert.True(t, h.RaiseOnMax())
}

func TestExampleHandler2_UncorrectableRaises(t *testing.T) {
	h := NewExampleHandler2(true)
	detected, err := h.Check(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.True(t, detected)

	rec, err := h.Correct(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rec.Actions)
	assert.True(t, rec.Uncorrectable())
	assert.True(t, h.RaisesRuntimeError())
}

func TestExampleHandler2b_UncorrectableDoesNotRaise(t *testing.T) {
	h := NewExampleHandler2(false)
	assert.False(t, h.RaisesRuntimeError())
}

func TestExampleValidator_AlwaysBad(t *testing.T) {
	v := NewExampleValidator("always-bad", true)
	bad, err := v.Check(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.True(t, bad)
}

func TestExampleJob_RunIncrementsCounter(t *testing.T) {
	counter := &Counter{}
	j := NewExampleJob("job-1", counter, 1)

	dir := t.TempDir()
	require.NoError(t, j.Setup(context.Background(), dir))
	handle, err := j.Run(context.Background(), dir)
	require.NoError(t, err)
	code, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, int64(1), counter.Load())
	require.NoError(t, j.Postprocess(context.Background(), dir))
}

func TestFailingExitJob_ReturnsConfiguredCode(t *testing.T) {
	j := NewFailingExitJob("job-1", 3)
	dir := t.TempDir()
	handle, err := j.Run(context.Background(), dir)
	require.NoError(t, err)
	code, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestFailingExitJob_OverrideTerminatesRun(t *testing.T) {
	plain := NewFailingExitJob("job-1", 1)
	terminates, overridden := plain.OverrideTerminatesRun("nonzero_return_code")
	assert.False(t, overridden, "a plain FailingExitJob has no opinion on any class")
	assert.False(t, terminates)

	nonFatal := NewFailingExitJob("job-1", 1).NonFatal()
	terminates, overridden = nonFatal.OverrideTerminatesRun("nonzero_return_code")
	require.True(t, overridden)
	assert.False(t, terminates)

	terminates, overridden = nonFatal.OverrideTerminatesRun("max_errors")
	assert.False(t, overridden, "NonFatal only has an opinion on nonzero_return_code")
	assert.False(t, terminates)
}
