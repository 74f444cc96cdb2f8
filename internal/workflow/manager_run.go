package workflow

import (
	"context"
	"fmt"
	"time"

	"avatarforge/internal/joblock"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/render"
	"avatarforge/internal/services"
)

// run is the runner body. The deferred epilogue is the only exit path.
func (m *Manager) run(job *activeJob, lease joblock.Lease) {
	ctx := services.WithJobID(m.ctx, job.id)
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("render runner panic: %v", r)
			logging.WithContext(ctx, m.logger).Error("render runner panicked",
				logging.String(logging.FieldEventType, "runner_panic"),
				logging.Any("panic", r),
			)
		}
		m.finish(ctx, job, lease, runErr)
	}()
	m.metrics.JobStarted()
	runErr = m.execute(ctx, job)
}

func (m *Manager) execute(ctx context.Context, job *activeJob) error {
	if m.cancelNow(ctx, job) {
		err := services.Wrap(services.ErrCancelled, "queued", "render", "cancelled before start", nil)
		m.renderer.Abandon(ctx, job.targets, err)
		return err
	}
	m.tracker.Write(ctx, jobstate.Transition(jobstate.StatusProcessing, "Processing"))

	_, err := m.renderer.Render(ctx, render.Job{ID: job.id, Kind: job.kind, Targets: job.targets}, render.Hooks{
		Progress: func(percent int, message string) {
			m.tracker.Write(ctx, jobstate.Step(percent, message))
		},
		Cancelled: func() bool { return m.cancelObserved(ctx, job) },
	})
	return err
}

// cancelObserved checks the in-process flag on every call and the durable
// flag at most once per cancel poll interval.
func (m *Manager) cancelObserved(ctx context.Context, job *activeJob) bool {
	if job.cancel.Load() {
		return true
	}
	job.pollMu.Lock()
	due := time.Since(job.lastPoll) >= m.cancelPoll
	if due {
		job.lastPoll = time.Now()
	}
	job.pollMu.Unlock()
	if !due {
		return false
	}
	return m.cancelNow(ctx, job)
}

func (m *Manager) cancelNow(ctx context.Context, job *activeJob) bool {
	if job.cancel.Load() {
		return true
	}
	if m.tracker.CancelRequested(ctx) {
		job.cancel.Store(true)
		return true
	}
	return false
}

// finish is the epilogue. Bookkeeping failures are logged inside the tracker
// and never stop the lease from being released. The status row is reset
// before the lease is released so a job admitted right after the release
// cannot have its queued record overwritten.
func (m *Manager) finish(ctx context.Context, job *activeJob, lease joblock.Lease, runErr error) {
	defer m.wg.Done()
	bookCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(bookCtx, m.logger)

	status := jobstate.TerminalStatus(runErr)
	message, errText := terminalMessage(status, runErr)
	m.tracker.Write(bookCtx, jobstate.Finished(status, message, errText))
	m.tracker.Reset(bookCtx, &jobstate.Outcome{
		JobID:      job.id,
		Status:     status,
		Message:    message,
		Error:      errText,
		FinishedAt: m.now(),
	})

	if err := lease.Release(bookCtx); err != nil {
		logger.Error("job lock release failed",
			logging.String(logging.FieldEventType, "job_lock_release_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the lock frees when this process exits; restart if admissions stay busy"),
		)
	}

	m.mu.Lock()
	if m.active == job {
		m.active = nil
	}
	m.mu.Unlock()
	m.tracker.ClearCache()

	elapsed := m.now().Sub(job.started)
	m.metrics.JobFinished(string(job.kind), string(status), elapsed)

	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.String(logging.FieldTarget, targetList(job.targets)),
		logging.Duration("elapsed", elapsed),
	}
	if status == jobstate.StatusError {
		details := services.Details(runErr)
		logging.ErrorWithContext(logger, "render job failed", "job_failed", append(attrs,
			logging.String("error_kind", details.Kind),
			logging.Error(runErr),
		)...)
	} else {
		attrs = append(attrs, logging.String(logging.FieldEventType, "job_finished"))
		logger.Info("render job finished", logging.Args(attrs...)...)
	}

	m.notifyOutcome(bookCtx, job, status, message, runErr, elapsed)
}

func terminalMessage(status jobstate.Status, err error) (message, errText string) {
	switch status {
	case jobstate.StatusDone:
		return "Completed", ""
	case jobstate.StatusCancelled:
		return "Cancelled", ""
	default:
		details := services.Details(err)
		return "Failed: " + details.Message, details.Cause
	}
}
