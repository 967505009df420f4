package journal

// ============================================================================
// Attempt Journal test file
// Purpose: verify append/flush durability, replay ordering, and
// tolerance of a truncated trailing record.
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.journal")
	j, err := OpenWithBatch(path, 2, 10*time.Millisecond)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(EventAttemptStart, "job-1", "", 0))
	require.NoError(t, j.Append(EventCorrection, "job-1", "handler-a", 0))
	require.NoError(t, j.Append(EventJobDone, "job-1", "", 1))

	var replayed []Event
	err = j.Replay(func(e Event) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, replayed, 3)
	assert.Equal(t, EventAttemptStart, replayed[0].Type)
	assert.Equal(t, EventCorrection, replayed[1].Type)
	assert.Equal(t, "handler-a", replayed[1].Handler)
	assert.Equal(t, EventJobDone, replayed[2].Type)
	assert.Equal(t, uint64(1), replayed[0].Seq)
	assert.Equal(t, uint64(3), replayed[2].Seq)
}

func TestReopen_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.journal")
	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Append(EventAttemptStart, "job-1", "", 0))
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	require.NoError(t, j2.Append(EventJobDone, "job-1", "", 1))

	var seqs []uint64
	require.NoError(t, j2.Replay(func(e Event) error {
		seqs = append(seqs, e.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestReplay_StopsAtHandlerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.journal")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(EventAttemptStart, "job-1", "", 0))
	require.NoError(t, j.Append(EventCorrection, "job-1", "handler-a", 0))

	count := 0
	err = j.Replay(func(e Event) error {
		count++
		if count == 1 {
			return assert.AnError
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestReplay_ToleratesTruncatedTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.journal")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(EventAttemptStart, "job-1", "", 0))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"type":"CORRECTION","job":"job-1"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	var replayed []Event
	err = j2.Replay(func(e Event) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, uint64(1), replayed[0].Seq)
}
