// ============================================================================
// Custodian Core Contracts - Job / Handler / Validator / ProcessHandle
// ============================================================================
//
// Package: internal/contract
// File: contract.go
// Purpose: The interfaces every collaborator (a caller's job definition, a
// failure-detecting handler, an output validator) must satisfy for the
// supervisor to drive them. The supervisor never inspects an
// implementor's internals beyond these contracts - polymorphism here is
// by capability set, not by any shared base type.
//
// ============================================================================

package contract

import (
	"context"

	"github.com/ChuLiYu/custodian/pkg/custodian"
)

// ProcessHandle is what Job.Run returns: a handle to an already-started
// external process. The supervisor blocks on Wait, and calls Terminate
// when a monitoring handler signals mid-run failure.
type ProcessHandle interface {
	// Poll reports whether the process has exited, without blocking.
	Poll() (exited bool)
	// Wait blocks until the process exits and returns its exit code.
	// ctx cancellation does not kill the process; callers that want
	// that must call Terminate.
	Wait(ctx context.Context) (exitCode int, err error)
	// Terminate attempts a graceful shutdown (SIGTERM) and, if the
	// process has not exited within the handle's grace period, a
	// forceful one (SIGKILL).
	Terminate(ctx context.Context) error
}

// Job represents one external computation, run to completion (possibly
// across several corrected attempts) by the supervisor.
//
// Setup must be idempotent: the supervisor may call it once per
// attempt, including retried attempts after a correction. Run must
// never block the caller past process start; the returned handle is
// what the supervisor blocks on.
type Job interface {
	// Name is a stable identifier used in log lines and the run log.
	Name() string
	// Setup prepares dir for a run: decompressing inputs, injecting
	// parameter overrides, copying input backups.
	Setup(ctx context.Context, dir string) error
	// Run launches the external process rooted at dir and returns a
	// handle to it immediately.
	Run(ctx context.Context, dir string) (ProcessHandle, error)
	// Postprocess cleans up and archives results after a successful
	// attempt (no handler fired on the final attempt).
	Postprocess(ctx context.Context, dir string) error
	// Terminate is called by the supervisor when a monitor handler
	// wants the running process stopped.
	Terminate(ctx context.Context, dir string) error
}

// JobSource pulls jobs one at a time. The sequence may be finite or
// produced lazily (e.g. constructed from a spec document entry by
// entry, or streamed from an external queue); the supervisor pulls
// exactly as many jobs as it runs and never materializes the full
// sequence up front.
type JobSource interface {
	// Next returns the next job to run. ok is false once the source is
	// exhausted (a normal end of run, not an error). A non-nil err
	// aborts the run immediately.
	Next(ctx context.Context) (job Job, ok bool, err error)
}

// sliceSource adapts a pre-built, finite slice of Jobs to JobSource,
// for callers (tests, small fixed demos) that already have every job
// in hand and don't need lazy construction.
type sliceSource struct {
	jobs []Job
	i    int
}

// NewSliceSource wraps jobs as a JobSource that yields them in order.
func NewSliceSource(jobs []Job) JobSource {
	return &sliceSource{jobs: jobs}
}

func (s *sliceSource) Next(ctx context.Context) (Job, bool, error) {
	if s.i >= len(s.jobs) {
		return nil, false, nil
	}
	job := s.jobs[s.i]
	s.i++
	return job, true, nil
}

// ErrorClassOverride lets a Job narrow or widen which error classes
// terminate the run, overriding the supervisor's global policy for
// just this job.
type ErrorClassOverride interface {
	// OverrideTerminatesRun reports, for a given sentinel error class
	// name (e.g. "max_errors", "max_errors_per_job",
	// "max_errors_per_handler", "nonzero_return_code"), whether this
	// job wants that class to terminate the run. The second return
	// value is false when the job has no opinion and the supervisor's
	// global policy should apply unmodified.
	OverrideTerminatesRun(class string) (terminates bool, overridden bool)
}

// Handler detects and corrects one class of failure. A Handler fires
// in one of three ways:
//   - Check returns false: no error detected, handler is a no-op this
//     attempt.
//   - Check returns true and Correct returns a record with non-nil
//     Actions: correctable, the supervisor applies the actions and
//     retries.
//   - Check returns true and Correct returns a record with nil
//     Actions: uncorrectable; if RaisesRuntimeError, the run aborts.
type Handler interface {
	// ID names this handler for the run log and error messages.
	ID() string
	// IsMonitor reports whether Check may be consulted while the
	// child process is still running.
	IsMonitor() bool
	// MonitorFreq is how many polling ticks elapse between
	// Check calls while monitoring (>= 1).
	MonitorFreq() int
	// IsTerminating reports whether, once this handler fires on an
	// attempt, no further handlers are consulted that attempt.
	IsTerminating() bool
	// RaisesRuntimeError reports whether an uncorrectable detection
	// (Correct returning nil Actions) aborts the run non-recoverably.
	RaisesRuntimeError() bool
	// SkipOverNonzeroReturnCode reports whether Check should be
	// skipped when the child process exited non-zero.
	SkipOverNonzeroReturnCode() bool
	// MaxNumCorrections is the cap on how many times this handler may
	// fire across the entire run; 0 means unbounded.
	MaxNumCorrections() int
	// RaiseOnMax reports whether hitting MaxNumCorrections aborts the
	// run (true) or silently turns this handler into a no-op (false).
	RaiseOnMax() bool

	// Check reports whether this handler's failure class is present
	// in dir.
	Check(ctx context.Context, dir string) (bool, error)
	// Correct applies the fix and reports what it did. A
	// CorrectionRecord with nil Actions signals uncorrectable.
	Correct(ctx context.Context, dir string) (custodian.CorrectionRecord, error)
}

// Validator runs once per run, after every job's attempt loop has
// finished. A true Check result means the run's final output is invalid
// and the run aborts.
type Validator interface {
	ID() string
	Check(ctx context.Context, dir string) (bool, error)
}
