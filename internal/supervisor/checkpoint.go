// ============================================================================
// Custodian Supervisor - checkpoint restore/cleanup and validators
// ============================================================================
//
// Package: internal/supervisor
// File: checkpoint.go
// Purpose: spec.md 4.5.5 (checkpoint resume) and 4.5.3 (final
// validation pass).
//
// ============================================================================

package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChuLiYu/custodian/internal/archive"
	"github.com/ChuLiYu/custodian/pkg/custodian"
)

// restoreCheckpoint looks for the highest-numbered "custodian.chk.N"
// archive under c.dir and, if one exists, extracts it in place and
// reconciles the persisted run log against runLog so that jobs already
// recorded as finished in custodian.json are not re-attempted. It
// returns the index of the first job that still needs to run and the
// run log to resume from (runLog unchanged if no checkpoint exists).
func (c *Custodian) restoreCheckpoint(runLog []custodian.RunLogEntry) (int, []custodian.RunLogEntry, error) {
	if !c.cfg.Checkpoint {
		return 0, runLog, nil
	}

	n, ok, err := archive.LatestNumber(c.dir, checkpointPrefix)
	if err != nil {
		return 0, runLog, fmt.Errorf("supervisor: locating checkpoint: %w", err)
	}
	if !ok {
		return 0, runLog, nil
	}

	archiveName := fmt.Sprintf("%s.%d.tar.gz", checkpointPrefix, n)
	archivePath := filepath.Join(c.dir, archiveName)
	if err := archive.Extract(archivePath, c.dir); err != nil {
		return 0, runLog, fmt.Errorf("supervisor: extracting checkpoint %s: %w", archiveName, err)
	}
	log.Info("restored checkpoint", "archive", archiveName)

	persisted, err := c.loadRunLog()
	if err != nil {
		return 0, runLog, err
	}
	if persisted == nil {
		return 0, runLog, nil
	}
	return len(persisted), persisted, nil
}

// loadRunLog reads custodian.json back, returning (nil, nil) if it does
// not exist (a checkpoint written before the first job finished).
func (c *Custodian) loadRunLog() ([]custodian.RunLogEntry, error) {
	path := filepath.Join(c.dir, runLogName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("supervisor: reading %s: %w", path, err)
	}
	var runLog []custodian.RunLogEntry
	if err := json.Unmarshal(data, &runLog); err != nil {
		return nil, fmt.Errorf("supervisor: parsing %s: %w", path, err)
	}
	return runLog, nil
}

// cleanupCheckpoints removes every "custodian.chk.*" archive under
// c.dir once a run has completed successfully; a completed run no
// longer needs to resume from one.
func (c *Custodian) cleanupCheckpoints() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		log.Warn("listing directory for checkpoint cleanup", "error", err)
		return
	}
	prefix := checkpointPrefix + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
				log.Warn("removing stale checkpoint", "file", name, "error", err)
			}
		}
	}
}

// runValidators flushes memoization and runs each validator in order,
// stopping and returning a *custodian.ValidationError at the first one
// that reports bad output, per spec.md 4.5.3.
func (c *Custodian) runValidators(ctx context.Context) error {
	c.flushMemoization()
	for _, v := range c.validators {
		bad, err := v.Check(ctx, c.dir)
		if err != nil {
			return fmt.Errorf("supervisor: validator %q check: %w", v.ID(), err)
		}
		if bad {
			return &custodian.ValidationError{Validator: v.ID()}
		}
	}
	return nil
}
