// ============================================================================
// Custodian Supervisor - per-job attempt loop
// ============================================================================
//
// Package: internal/supervisor
// File: attempt.go
// Purpose: One job's attempt loop (spec.md 4.5.2): Setup -> Run ->
// monitor (if any handler watches mid-run) -> post-mortem checks ->
// correction dispatch -> quota checks -> retry or succeed.
//
// ============================================================================

package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/custodian/internal/archive"
	"github.com/ChuLiYu/custodian/internal/contract"
	"github.com/ChuLiYu/custodian/internal/journal"
	"github.com/ChuLiYu/custodian/pkg/custodian"
)

type waitResult struct {
	code int
	err  error
}

// attemptLoop drives job through retries until it either succeeds (no
// handler fires on the final attempt) or a terminal error aborts the
// run.
func (c *Custodian) attemptLoop(ctx context.Context, job contract.Job) (custodian.RunLogEntry, error) {
	entry := custodian.RunLogEntry{Job: job.Name(), StartedAt: time.Now()}

	attempt := 0
	for {
		attempt++
		c.mu.Lock()
		cumulative := c.totalErrors
		c.mu.Unlock()
		log.Info("attempt start", "job", job.Name(), "attempt", attempt, "cumulative_errors", cumulative)
		c.appendJournal(journal.EventAttemptStart, job.Name(), "", attempt)
		if c.metrics != nil {
			c.metrics.RecordAttempt()
		}

		if err := job.Setup(ctx, c.dir); err != nil {
			return entry, fmt.Errorf("supervisor: job %q setup: %w", job.Name(), err)
		}

		handle, err := job.Run(ctx, c.dir)
		if err != nil {
			return entry, fmt.Errorf("supervisor: job %q run: %w", job.Name(), err)
		}

		exitCode, firedMonitor, err := c.runAndMonitor(ctx, job, handle)
		if err != nil {
			return entry, err
		}

		c.flushMemoization()

		if exitCode != 0 {
			entry.Termination.NonzeroReturnCode = true
			if c.cfg.TerminateOnNonzeroReturncode {
				entry.FinishedAt = time.Now()
				return entry, &custodian.ReturnCodeError{Job: job.Name(), Code: exitCode}
			}
		} else {
			entry.Termination.NonzeroReturnCode = false
		}

		fired, _, err := c.postMortemCheck(ctx, job.Name(), firedMonitor, exitCode)
		if err != nil {
			return entry, err
		}

		if len(fired) == 0 {
			if err := job.Postprocess(ctx, c.dir); err != nil {
				return entry, fmt.Errorf("supervisor: job %q postprocess: %w", job.Name(), err)
			}
			entry.FinishedAt = time.Now()
			c.appendJournal(journal.EventJobDone, job.Name(), "", attempt)
			if c.metrics != nil {
				c.metrics.RecordJobDuration(entry.FinishedAt.Sub(entry.StartedAt).Seconds())
			}
			return entry, nil
		}

		before := len(entry.Corrections)
		termErr := c.dispatchCorrections(ctx, job.Name(), &entry, fired)
		if termErr != nil {
			entry.FinishedAt = time.Now()
			return entry, termErr
		}

		if quotaErr := c.checkGlobalQuotas(job.Name(), &entry); quotaErr != nil {
			entry.FinishedAt = time.Now()
			return entry, quotaErr
		}

		// An uncorrectable error from a handler that does not raise ends
		// this job's attempt loop without error: a retry cannot fix it.
		for _, rec := range entry.Corrections[before:] {
			if rec.Uncorrectable() {
				entry.FinishedAt = time.Now()
				return entry, nil
			}
		}
	}
}

// resumePostMortem implements RunInterrupted: the job is treated as
// though its last-known attempt had just finished (exit code 0, no
// monitor handler fired), skipping straight to the post-mortem check
// phase.
func (c *Custodian) resumePostMortem(ctx context.Context, job contract.Job, prior custodian.RunLogEntry) (custodian.RunLogEntry, error) {
	entry := prior
	fired, _, err := c.postMortemCheck(ctx, job.Name(), nil, 0)
	if err != nil {
		return entry, err
	}
	if len(fired) == 0 {
		if err := job.Postprocess(ctx, c.dir); err != nil {
			return entry, fmt.Errorf("supervisor: job %q postprocess: %w", job.Name(), err)
		}
		entry.FinishedAt = time.Now()
		return entry, nil
	}

	if termErr := c.dispatchCorrections(ctx, job.Name(), &entry, fired); termErr != nil {
		entry.FinishedAt = time.Now()
		return entry, termErr
	}
	if quotaErr := c.checkGlobalQuotas(job.Name(), &entry); quotaErr != nil {
		entry.FinishedAt = time.Now()
		return entry, quotaErr
	}

	next, err := c.attemptLoop(ctx, job)
	next.Job = entry.Job
	next.Corrections = append(entry.Corrections, next.Corrections...)
	next.StartedAt = entry.StartedAt
	return next, err
}

// runAndMonitor blocks until the child process exits, racing a
// background monitor task (if any handler is a monitor) that may
// terminate the child early. It returns the exit code and, if a
// monitor handler fired, which one.
func (c *Custodian) runAndMonitor(ctx context.Context, job contract.Job, handle contract.ProcessHandle) (int, contract.Handler, error) {
	var monitors []contract.Handler
	for _, h := range c.handlers {
		if h.IsMonitor() {
			monitors = append(monitors, h)
		}
	}

	exitCh := make(chan waitResult, 1)
	go func() {
		code, err := handle.Wait(ctx)
		exitCh <- waitResult{code: code, err: err}
	}()

	if len(monitors) == 0 {
		res := <-exitCh
		if res.err != nil {
			return -1, nil, fmt.Errorf("supervisor: job %q wait: %w", job.Name(), res.err)
		}
		return res.code, nil, nil
	}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	fired := make(chan contract.Handler, 1)
	go c.runMonitor(monitorCtx, monitors, fired)

	select {
	case res := <-exitCh:
		if res.err != nil {
			return -1, nil, fmt.Errorf("supervisor: job %q wait: %w", job.Name(), res.err)
		}
		return res.code, nil, nil
	case h := <-fired:
		if err := job.Terminate(ctx, c.dir); err != nil {
			log.Warn("job terminate failed after monitor hit", "job", job.Name(), "handler", h.ID(), "error", err)
		}
		res := <-exitCh
		return res.code, h, nil
	}
}

// runMonitor polls each monitoring handler's Check once per
// PollingTimeStep tick, once every MonitorFreq ticks, serialized with
// each other. The first Check to return true stops polling and
// signals fired.
func (c *Custodian) runMonitor(ctx context.Context, monitors []contract.Handler, fired chan<- contract.Handler) {
	step := c.cfg.PollingTimeStep
	if step <= 0 {
		step = time.Second
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	ticks := make([]int, len(monitors))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, h := range monitors {
				ticks[i]++
				freq := h.MonitorFreq()
				if freq < 1 {
					freq = 1
				}
				if ticks[i]%freq != 0 {
					continue
				}
				detected, err := h.Check(ctx, c.dir)
				if err != nil {
					log.Warn("monitor check failed", "handler", h.ID(), "error", err)
					continue
				}
				if detected {
					select {
					case fired <- h:
					default:
					}
					return
				}
			}
		}
	}
}

// postMortemCheck consults every handler in priority (list) order,
// except a handler already consulted as the firing monitor and a
// handler that has reached its MaxNumCorrections without RaiseOnMax
// (a no-op from then on), stopping after the first terminating handler
// fires.
func (c *Custodian) postMortemCheck(ctx context.Context, jobName string, firedMonitor contract.Handler, exitCode int) ([]contract.Handler, bool, error) {
	var fired []contract.Handler
	terminated := false

	if firedMonitor != nil {
		fired = append(fired, firedMonitor)
		if firedMonitor.IsTerminating() {
			terminated = true
		}
	}

	for _, h := range c.handlers {
		if terminated {
			break
		}
		if h == firedMonitor {
			continue
		}
		if exitCode != 0 && h.SkipOverNonzeroReturnCode() {
			continue
		}
		c.mu.Lock()
		capped := h.MaxNumCorrections() > 0 && !h.RaiseOnMax() && c.perHandlerApplied[h.ID()] >= h.MaxNumCorrections()
		c.mu.Unlock()
		if capped {
			continue
		}
		detected, err := h.Check(ctx, c.dir)
		if err != nil {
			return nil, false, fmt.Errorf("supervisor: job %q handler %q check: %w", jobName, h.ID(), err)
		}
		if !detected {
			continue
		}
		fired = append(fired, h)
		if h.IsTerminating() {
			terminated = true
		}
	}

	return fired, terminated, nil
}

// dispatchCorrections applies each fired handler's fix in turn,
// snapshotting before each one, honoring per-handler correction caps,
// and returns a non-nil terminal error if any handler is uncorrectable
// and raises.
func (c *Custodian) dispatchCorrections(ctx context.Context, jobName string, entry *custodian.RunLogEntry, fired []contract.Handler) error {
	for _, h := range fired {
		c.mu.Lock()
		applied := c.perHandlerApplied[h.ID()]
		c.mu.Unlock()

		if max := h.MaxNumCorrections(); max > 0 && applied >= max {
			if h.RaiseOnMax() {
				entry.Termination.MaxErrorsPerHandler = true
				entry.Termination.HandlerID = h.ID()
				if c.metrics != nil {
					c.metrics.RecordQuotaHit("max_errors_per_handler")
				}
				return &custodian.MaxCorrectionsPerHandlerError{Job: jobName, Handler: h.ID(), Max: max}
			}
			log.Info("handler correction cap reached, skipping", "job", jobName, "handler", h.ID())
			continue
		}

		if _, err := archive.Backup([]string{"*"}, snapshotPrefix, c.dir); err != nil {
			log.Warn("pre-correction snapshot failed", "job", jobName, "handler", h.ID(), "error", err)
		}

		rec, err := h.Correct(ctx, c.dir)
		if err != nil {
			return fmt.Errorf("supervisor: job %q handler %q correct: %w", jobName, h.ID(), err)
		}
		rec.Handler = h.ID()
		entry.Corrections = append(entry.Corrections, rec)
		c.appendJournal(journal.EventCorrection, jobName, h.ID(), 0)
		if c.metrics != nil {
			c.metrics.RecordCorrection(h.ID())
		}

		if rec.Uncorrectable() {
			if h.RaisesRuntimeError() {
				entry.Termination.HandlerID = h.ID()
				return &custodian.NonRecoverableError{Job: jobName, Handler: h.ID(), Errors: rec.Errors}
			}
			log.Info("uncorrectable error logged, continuing", "job", jobName, "handler", h.ID())
		} else {
			if err := c.modder.ApplyAll(rec.Actions, c.dicts); err != nil {
				return fmt.Errorf("supervisor: job %q handler %q applying corrections: %w", jobName, h.ID(), err)
			}
		}

		c.mu.Lock()
		c.perHandlerApplied[h.ID()]++
		c.totalErrors++
		c.mu.Unlock()
	}
	return nil
}

// checkGlobalQuotas enforces the run-wide and per-job correction
// budgets after a round of corrections has been applied.
func (c *Custodian) checkGlobalQuotas(jobName string, entry *custodian.RunLogEntry) error {
	c.mu.Lock()
	total := c.totalErrors
	c.mu.Unlock()

	if total >= c.cfg.MaxErrors {
		entry.Termination.MaxErrors = true
		if c.metrics != nil {
			c.metrics.RecordQuotaHit("max_errors")
		}
		return &custodian.MaxCorrectionsError{Job: jobName, Total: total, Max: c.cfg.MaxErrors}
	}
	if len(entry.Corrections) >= c.cfg.MaxErrorsPerJob {
		entry.Termination.MaxErrorsPerJob = true
		if c.metrics != nil {
			c.metrics.RecordQuotaHit("max_errors_per_job")
		}
		return &custodian.MaxCorrectionsPerJobError{Job: jobName, Count: len(entry.Corrections), Max: c.cfg.MaxErrorsPerJob}
	}
	return nil
}
