// ============================================================================
// Custodian Supervisor - scratch directory lifecycle
// ============================================================================
//
// Package: internal/supervisor
// File: scratch.go
// Purpose: spec.md 4.5.4: if ScratchDir is configured and differs from
// the run directory, the run executes inside a fresh temp subdirectory
// of ScratchDir (a recursive copy of the original), with a symlink
// "scratch_link" left in the original directory pointing at it. On
// exit the scratch contents are copied back and the temp subdirectory
// and symlink are removed.
//
// ============================================================================

package supervisor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const scratchLinkName = "scratch_link"

// setupScratch creates the scratch directory and switches c.dir to it,
// returning the state teardownScratch needs to reverse the switch. It
// returns nil, nil if scratch mode is not configured.
func (c *Custodian) setupScratch() (*scratchState, error) {
	if c.cfg.ScratchDir == "" || c.cfg.ScratchDir == c.dir {
		return nil, nil
	}

	tempDir, err := os.MkdirTemp(c.cfg.ScratchDir, "custodian-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("supervisor: creating scratch dir: %w", err)
	}

	if err := copyTree(c.dir, tempDir); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("supervisor: copying into scratch dir: %w", err)
	}

	linkPath := filepath.Join(c.dir, scratchLinkName)
	os.Remove(linkPath)
	if err := os.Symlink(tempDir, linkPath); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("supervisor: linking scratch dir: %w", err)
	}

	st := &scratchState{originalDir: c.dir, tempDir: tempDir}
	c.dir = tempDir
	return st, nil
}

// teardownScratch copies scratch contents back into the original
// directory and removes the temp subdirectory and symlink. It is a
// no-op (and safe to call) when scratch mode was never set up.
func (c *Custodian) teardownScratch(st *scratchState) {
	if st == nil {
		return
	}

	if err := copyTree(st.tempDir, st.originalDir); err != nil {
		log.Error("copying scratch dir back", "error", err)
	}

	c.dir = st.originalDir
	os.Remove(filepath.Join(st.originalDir, scratchLinkName))
	if err := os.RemoveAll(st.tempDir); err != nil {
		log.Error("removing scratch dir", "error", err)
	}
}

// copyTree recursively copies the contents of src into dst, which must
// already exist. Symlinks inside src (such as a stale scratch_link) are
// skipped rather than followed or recreated.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())

		info, err := os.Lstat(srcPath)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if e.IsDir() {
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
