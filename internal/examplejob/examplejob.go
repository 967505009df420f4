// ============================================================================
// Custodian Example Fixtures
// ============================================================================
//
// Package: internal/examplejob
// File: examplejob.go
// Purpose: Reference Job/Handler/Validator implementations used by the
// supervisor's own test suite and by cmd/custodian's demo mode. These
// are deliberately trivial collaborators standing in for a real
// scientific-computation job: ExampleJob runs a no-op child process and
// bumps a shared counter; ExampleHandler demands the counter reach a
// threshold before letting a job's attempt loop succeed, applying a
// correction (a counter bump) each time it doesn't.
//
// ============================================================================

package examplejob

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ChuLiYu/custodian/internal/contract"
	"github.com/ChuLiYu/custodian/internal/procutil"
	"github.com/ChuLiYu/custodian/pkg/custodian"
)

// Counter is a shared running sum, mutated by ExampleJob.Run and by
// ExampleHandler's corrections, read by ExampleHandler.Check. It stands
// in for the on-disk state a real handler would parse from the child
// process's output files.
type Counter struct {
	value int64
}

func (c *Counter) Add(delta int64) int64 { return atomic.AddInt64(&c.value, delta) }
func (c *Counter) Load() int64           { return atomic.LoadInt64(&c.value) }

// ExampleJob runs a trivial child process and increments shared on
// every attempt, simulating a job whose running sum slowly accumulates
// toward whatever threshold the handler is watching for.
type ExampleJob struct {
	name      string
	shared    *Counter
	increment int64
}

// NewExampleJob builds an ExampleJob named name that adds increment to
// shared on every attempt.
func NewExampleJob(name string, shared *Counter, increment int64) *ExampleJob {
	return &ExampleJob{name: name, shared: shared, increment: increment}
}

func (j *ExampleJob) Name() string { return j.name }

func (j *ExampleJob) Setup(ctx context.Context, dir string) error {
	return nil
}

func (j *ExampleJob) Run(ctx context.Context, dir string) (contract.ProcessHandle, error) {
	h, err := procutil.Start(ctx, dir, "true")
	if err != nil {
		return nil, fmt.Errorf("examplejob: starting child: %w", err)
	}
	j.shared.Add(j.increment)
	return h, nil
}

func (j *ExampleJob) Postprocess(ctx context.Context, dir string) error {
	return nil
}

func (j *ExampleJob) Terminate(ctx context.Context, dir string) error {
	return nil
}

// ExampleHandler demands shared reach threshold, correcting by adding
// boost to shared each time it doesn't.
type ExampleHandler struct {
	id        string
	shared    *Counter
	threshold int64
	boost     int64

	maxNumCorrections int
	raiseOnMax        bool
	applied           int
}

// NewExampleHandler builds a handler that fires while shared.Load() <
// threshold, correcting by adding boost.
func NewExampleHandler(shared *Counter, threshold, boost int64) *ExampleHandler {
	return &ExampleHandler{id: "threshold", shared: shared, threshold: threshold, boost: boost}
}

// WithMaxNumCorrections bounds how many times this handler may fire,
// aborting the run (raiseOnMax) or becoming a silent no-op once hit.
func (h *ExampleHandler) WithMaxNumCorrections(max int, raiseOnMax bool) *ExampleHandler {
	h.maxNumCorrections = max
	h.raiseOnMax = raiseOnMax
	return h
}

func (h *ExampleHandler) ID() string                        { return h.id }
func (h *ExampleHandler) IsMonitor() bool                    { return false }
func (h *ExampleHandler) MonitorFreq() int                   { return 1 }
func (h *ExampleHandler) IsTerminating() bool                { return false }
func (h *ExampleHandler) RaisesRuntimeError() bool           { return true }
func (h *ExampleHandler) SkipOverNonzeroReturnCode() bool    { return false }
func (h *ExampleHandler) MaxNumCorrections() int             { return h.maxNumCorrections }
func (h *ExampleHandler) RaiseOnMax() bool                   { return h.raiseOnMax }
func (h *ExampleHandler) AppliedCorrections() int            { return h.applied }

func (h *ExampleHandler) Check(ctx context.Context, dir string) (bool, error) {
	return h.shared.Load() < h.threshold, nil
}

func (h *ExampleHandler) Correct(ctx context.Context, dir string) (custodian.CorrectionRecord, error) {
	h.applied++
	h.shared.Add(h.boost)
	return custodian.CorrectionRecord{
		Errors:  []string{fmt.Sprintf("counter %d below threshold %d", h.shared.Load()-h.boost, h.threshold)},
		Handler: h.id,
		Actions: []custodian.Action{
			{Dict: "counter", Action: map[string]any{"_inc": map[string]any{"value": h.boost}}},
		},
	}, nil
}

// ExampleHandler2 always detects an error and always reports it
// uncorrectable (Correct returns nil Actions). Whether that aborts the
// run depends on RaisesRuntimeError, toggled via NewExampleHandler2.
type ExampleHandler2 struct {
	id                 string
	raisesRuntimeError bool
}

// NewExampleHandler2 builds an always-uncorrectable handler. When
// raisesRuntimeError is false this is ExampleHandler2b from the
// scenario catalog: the run proceeds past an uncorrectable detection.
func NewExampleHandler2(raisesRuntimeError bool) *ExampleHandler2 {
	id := "uncorrectable"
	if !raisesRuntimeError {
		id = "uncorrectable-soft"
	}
	return &ExampleHandler2{id: id, raisesRuntimeError: raisesRuntimeError}
}

func (h *ExampleHandler2) ID() string                     { return h.id }
func (h *ExampleHandler2) IsMonitor() bool                { return false }
func (h *ExampleHandler2) MonitorFreq() int                { return 1 }
func (h *ExampleHandler2) IsTerminating() bool             { return true }
func (h *ExampleHandler2) RaisesRuntimeError() bool        { return h.raisesRuntimeError }
func (h *ExampleHandler2) SkipOverNonzeroReturnCode() bool { return false }
func (h *ExampleHandler2) MaxNumCorrections() int          { return 0 }
func (h *ExampleHandler2) RaiseOnMax() bool                { return false }

func (h *ExampleHandler2) Check(ctx context.Context, dir string) (bool, error) {
	return true, nil
}

func (h *ExampleHandler2) Correct(ctx context.Context, dir string) (custodian.CorrectionRecord, error) {
	return custodian.CorrectionRecord{
		Errors:  []string{"detected an unfixable condition"},
		Handler: h.id,
		Actions: nil,
	}, nil
}

// ExampleValidator returns a Check result fixed at construction; with
// alwaysBad set it always rejects the final output, modeling scenario
// S7: a validator that always returns true (invalid).
type ExampleValidator struct {
	id        string
	alwaysBad bool
}

// NewExampleValidator builds a validator whose Check result is fixed
// at construction (used by S7's always-true validator).
func NewExampleValidator(id string, alwaysBad bool) *ExampleValidator {
	return &ExampleValidator{id: id, alwaysBad: alwaysBad}
}

func (v *ExampleValidator) ID() string { return v.id }

func (v *ExampleValidator) Check(ctx context.Context, dir string) (bool, error) {
	return v.alwaysBad, nil
}

// FailingExitJob is a job whose child always exits with a fixed
// non-zero code, modeling scenario S8.
type FailingExitJob struct {
	name     string
	exitCode int
	nonFatal bool
}

// NewFailingExitJob builds a job whose Run always produces the given
// exit code.
func NewFailingExitJob(name string, exitCode int) *FailingExitJob {
	return &FailingExitJob{name: name, exitCode: exitCode}
}

// NonFatal makes a non-zero exit from this job opt out of terminating
// the whole run: the job itself still fails (its RunLogEntry records
// NonzeroReturnCode), but the supervisor moves on to the next job
// instead of aborting. Models spec.md 6's per-job override of fatal
// errors.
func (j *FailingExitJob) NonFatal() *FailingExitJob {
	j.nonFatal = true
	return j
}

// OverrideTerminatesRun implements contract.ErrorClassOverride: when
// nonFatal is set, this job asks the supervisor not to treat its own
// nonzero_return_code as run-terminating. It has no opinion on any
// other error class.
func (j *FailingExitJob) OverrideTerminatesRun(class string) (terminates bool, overridden bool) {
	if j.nonFatal && class == "nonzero_return_code" {
		return false, true
	}
	return false, false
}

func (j *FailingExitJob) Name() string { return j.name }

func (j *FailingExitJob) Setup(ctx context.Context, dir string) error { return nil }

func (j *FailingExitJob) Run(ctx context.Context, dir string) (contract.ProcessHandle, error) {
	return procutil.Start(ctx, dir, "sh", "-c", fmt.Sprintf("exit %d", j.exitCode))
}

func (j *FailingExitJob) Postprocess(ctx context.Context, dir string) error { return nil }

func (j *FailingExitJob) Terminate(ctx context.Context, dir string) error { return nil }
