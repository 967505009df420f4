package archive

// ============================================================================
// Snapshot / Backup test file
// Purpose: verify numbered tarball naming, glob expansion, and round-trip
// extraction.
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestBackup_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "INCAR", "system = test")

	path, err := Backup([]string{"INCAR"}, "error", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "error.1.tar.gz"), path)
	assert.FileExists(t, path)
}

func TestBackup_GlobExpansion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "INCAR", "a")
	writeFile(t, dir, "POSCAR", "b")
	writeFile(t, dir, "garbage", "c")

	path, err := Backup([]string{"*CAR"}, "error", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "error.1.tar.gz"), path)

	extractDir := t.TempDir()
	require.NoError(t, Extract(path, extractDir))
	assert.FileExists(t, filepath.Join(extractDir, "INCAR"))
	assert.FileExists(t, filepath.Join(extractDir, "POSCAR"))
	assert.NoFileExists(t, filepath.Join(extractDir, "garbage"))
}

func TestBackup_NumbersIncrement(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "1")

	first, err := Backup([]string{"a.txt"}, "snap", dir)
	require.NoError(t, err)
	second, err := Backup([]string{"a.txt"}, "snap", dir)
	require.NoError(t, err)
	third, err := Backup([]string{"a.txt"}, "snap", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "snap.1.tar.gz"), first)
	assert.Equal(t, filepath.Join(dir, "snap.2.tar.gz"), second)
	assert.Equal(t, filepath.Join(dir, "snap.3.tar.gz"), third)
}

func TestBackup_RoundTripContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "output.log", "line one\nline two\n")

	path, err := Backup([]string{"output.log"}, "ckpt", dir)
	require.NoError(t, err)

	extractDir := t.TempDir()
	require.NoError(t, Extract(path, extractDir))

	data, err := os.ReadFile(filepath.Join(extractDir, "output.log"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestLatestNumber(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := LatestNumber(dir, "custodian.chk")
	require.NoError(t, err)
	assert.False(t, ok)

	writeFile(t, dir, "a.txt", "1")
	_, err = Backup([]string{"a.txt"}, "custodian.chk", dir)
	require.NoError(t, err)
	_, err = Backup([]string{"a.txt"}, "custodian.chk", dir)
	require.NoError(t, err)

	n, ok, err := LatestNumber(dir, "custodian.chk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, n)
}
