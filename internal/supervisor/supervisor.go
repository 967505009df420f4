// ============================================================================
// Custodian Supervisor - the state machine
// ============================================================================
//
// Package: internal/supervisor
// File: supervisor.go
// Purpose: Drives a sequence of Jobs to completion across transient
// failures, via Handler-detected corrections applied by the Mutation
// Engine, bounded by several quota dimensions, with crash-safe
// checkpointing. This is the centerpiece every other package exists to
// serve - the attempt loop described in spec section 4.5.
//
// ============================================================================

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChuLiYu/custodian/internal/archive"
	"github.com/ChuLiYu/custodian/internal/contract"
	"github.com/ChuLiYu/custodian/internal/journal"
	"github.com/ChuLiYu/custodian/internal/memoize"
	"github.com/ChuLiYu/custodian/internal/metrics"
	"github.com/ChuLiYu/custodian/internal/mutate"
	"github.com/ChuLiYu/custodian/pkg/custodian"
)

var log = slog.Default()

const (
	runLogName       = "custodian.json"
	checkpointPrefix = "custodian.chk"
	snapshotPrefix   = "error"
)

// Custodian is the supervisor state machine. One instance drives one
// run (a finite sequence of Jobs) to completion or to a terminal error.
type Custodian struct {
	cfg        custodian.SupervisorConfig
	handlers   []contract.Handler
	validators []contract.Validator
	dicts      map[string]map[string]any
	modder     *mutate.Modder
	dir        string
	jr         *journal.Journal
	metrics    *metrics.Collector

	mu                sync.Mutex
	perHandlerApplied map[string]int
	totalErrors       int
}

// Option configures a Custodian at construction.
type Option func(*Custodian)

// WithJournal records attempt events to the already-open journal jr
// (custodian.json remains the authoritative persisted run log; the
// journal is a finer-grained, purely additive crash-safety layer).
func WithJournal(jr *journal.Journal) Option {
	return func(c *Custodian) { c.jr = jr }
}

// WithMetrics enables Prometheus metrics recording against collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Custodian) { c.metrics = collector }
}

// New builds a Custodian over dir (the run's working directory), with
// the given handlers (in priority/list order), validators, and the
// logical-name -> dict mapping corrections may mutate.
func New(cfg custodian.SupervisorConfig, handlers []contract.Handler, validators []contract.Validator, dicts map[string]map[string]any, dir string, opts ...Option) *Custodian {
	if dicts == nil {
		dicts = make(map[string]map[string]any)
	}
	c := &Custodian{
		cfg:               cfg,
		handlers:          handlers,
		validators:        validators,
		dicts:             dicts,
		modder:            mutate.NewModder(nil, false),
		dir:               dir,
		perHandlerApplied: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dicts exposes the logical-name -> dict mapping, for callers that want
// to seed or inspect shared state the handlers correct.
func (c *Custodian) Dicts() map[string]map[string]any { return c.dicts }

// Run pulls jobs from source one at a time, driving each to completion,
// and returns the full run log on both success and terminal error
// (errors are re-raised after log persistence and scratch-dir
// teardown, per spec.md's propagation policy). The full job sequence
// is never materialized: source is pulled exactly as many times as
// jobs are run.
func (c *Custodian) Run(ctx context.Context, source contract.JobSource) ([]custodian.RunLogEntry, error) {
	return c.run(ctx, source, 0, nil)
}

// RunInterrupted resumes a run after an external wall-time kill. The
// first len(priorLog)-1 jobs pulled from source are taken as already
// recorded in priorLog and skipped. The next job is treated as though
// it had just finished its last-known attempt (Setup/Run/Postprocess
// are skipped) when its name matches priorLog's last entry; execution
// proceeds directly to the post-mortem check phase on that job, then
// continues normally through the rest of source. priorLog is the run
// log persisted by the interrupted run; the caller's slice is not
// modified, and the extended log is persisted to custodian.json.
// Returns the number of jobs this call attempted (0 if source was
// already exhausted).
func (c *Custodian) RunInterrupted(ctx context.Context, source contract.JobSource, priorLog []custodian.RunLogEntry) (int, error) {
	startIndex := 0
	if len(priorLog) > 0 {
		startIndex = len(priorLog) - 1
	}
	log, err := c.run(ctx, source, startIndex, priorLog)
	return len(log) - len(priorLog), err
}

type scratchState struct {
	originalDir string
	tempDir     string
}

// run is the shared engine behind Run and RunInterrupted. startIndex
// counts how many jobs at the front of source are already accounted
// for in priorLog (or a restored checkpoint) and must be pulled and
// discarded rather than re-attempted.
func (c *Custodian) run(ctx context.Context, source contract.JobSource, startIndex int, priorLog []custodian.RunLogEntry) ([]custodian.RunLogEntry, error) {
	runLog := append([]custodian.RunLogEntry(nil), priorLog...)

	scratch, err := c.setupScratch()
	if err != nil {
		return runLog, err
	}
	defer c.teardownScratch(scratch)

	resumeIndex, resumeLog, err := c.restoreCheckpoint(runLog)
	if err != nil {
		return runLog, err
	}
	if resumeIndex > startIndex {
		startIndex = resumeIndex
		runLog = resumeLog
	}

	for i := 0; i < startIndex; i++ {
		if _, ok, err := source.Next(ctx); err != nil {
			return runLog, fmt.Errorf("supervisor: pulling next job: %w", err)
		} else if !ok {
			return runLog, nil
		}
	}

	job, ok, err := source.Next(ctx)
	if err != nil {
		return runLog, fmt.Errorf("supervisor: pulling next job: %w", err)
	}
	resumedFirstJob := ok && len(priorLog) > 0 && priorLog[len(priorLog)-1].Job == job.Name()

	for ok {
		var entry custodian.RunLogEntry
		var runErr error

		if resumedFirstJob {
			entry, runErr = c.resumePostMortem(ctx, job, priorLog[len(priorLog)-1])
			resumedFirstJob = false
		} else {
			entry, runErr = c.attemptLoop(ctx, job)
		}

		runLog = append(runLog, entry)
		if persistErr := c.persistRunLog(runLog); persistErr != nil {
			log.Error("persisting run log", "error", persistErr)
		}

		if runErr != nil {
			c.appendJournal(journal.EventTermination, job.Name(), "", 0)
			overridden := false
			if class, matched := errorClass(runErr); matched {
				if terminates, ov := overrideTerminates(job, class); ov && !terminates {
					overridden = true
					log.Info("job opted out of run-level termination", "job", job.Name(), "class", class, "error", runErr)
				}
			}
			if !overridden {
				return runLog, runErr
			}
		} else if c.cfg.Checkpoint {
			if _, err := archive.Backup([]string{"*"}, checkpointPrefix, c.dir); err != nil {
				log.Error("writing checkpoint", "job", job.Name(), "error", err)
			}
		}

		job, ok, err = source.Next(ctx)
		if err != nil {
			return runLog, fmt.Errorf("supervisor: pulling next job: %w", err)
		}
	}

	if err := c.runValidators(ctx); err != nil {
		if len(runLog) > 0 {
			runLog[len(runLog)-1].Termination.ValidatorID = validatorIDFromErr(err)
		}
		c.persistRunLog(runLog)
		return runLog, err
	}

	if c.cfg.Checkpoint {
		c.cleanupCheckpoints()
	}

	return runLog, nil
}

func validatorIDFromErr(err error) string {
	var verr *custodian.ValidationError
	if errors.As(err, &verr) {
		return verr.Validator
	}
	return ""
}

// errorClass maps a terminal attempt-loop error to the sentinel class
// name an ErrorClassOverride implementation recognizes. The second
// return value is false for error kinds no override applies to
// (NonRecoverableError, ValidationError) - those are not run-level
// quota/policy decisions a job gets a vote on.
func errorClass(err error) (string, bool) {
	switch {
	case errors.As(err, new(*custodian.MaxCorrectionsError)):
		return "max_errors", true
	case errors.As(err, new(*custodian.MaxCorrectionsPerJobError)):
		return "max_errors_per_job", true
	case errors.As(err, new(*custodian.MaxCorrectionsPerHandlerError)):
		return "max_errors_per_handler", true
	case errors.As(err, new(*custodian.ReturnCodeError)):
		return "nonzero_return_code", true
	default:
		return "", false
	}
}

// overrideTerminates consults job's ErrorClassOverride, if it
// implements one, for class. overridden is false when job has no
// opinion and the supervisor's default (always terminate) applies.
func overrideTerminates(job contract.Job, class string) (terminates bool, overridden bool) {
	override, ok := job.(contract.ErrorClassOverride)
	if !ok {
		return false, false
	}
	return override.OverrideTerminatesRun(class)
}

// persistRunLog atomically overwrites custodian.json with log, per
// spec.md 4.5.7.
func (c *Custodian) persistRunLog(runLog []custodian.RunLogEntry) error {
	path := filepath.Join(c.dir, runLogName)
	data, err := json.MarshalIndent(runLog, "", "  ")
	if err != nil {
		return fmt.Errorf("supervisor: marshaling run log: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("supervisor: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("supervisor: renaming %s: %w", tmp, err)
	}
	return nil
}

// flushMemoization clears every tracked-memoized cache, per spec.md
// 4.3/5: called between successive attempts and before validators so no
// handler or validator ever sees stale parsed output.
func (c *Custodian) flushMemoization() {
	memoize.TrackedCacheClear()
}

func (c *Custodian) appendJournal(eventType journal.EventType, job, handler string, attempt int) {
	if c.jr == nil {
		return
	}
	if err := c.jr.Append(eventType, job, handler, attempt); err != nil {
		log.Warn("journal append failed", "error", err)
	}
}

