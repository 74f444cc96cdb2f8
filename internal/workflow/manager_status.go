package workflow

import (
	"context"
	"errors"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
)

// ErrConfirmationRequired is returned by RequestCancel for paired jobs when
// the caller has not confirmed that the chatbot will be deleted afterwards.
var ErrConfirmationRequired = errors.New("cancelling a chatbot render requires confirm_delete")

// Status returns the job status snapshot. A record that claims an active job
// while nobody holds the job lock is left over from a runner that died before
// its epilogue; it is reset to idle before being returned.
func (m *Manager) Status(ctx context.Context) jobstate.JobStatus {
	status := m.tracker.Read(ctx)
	if !status.Status.Active() || status.Degraded {
		return status
	}
	if job := m.current(); job != nil && job.id == status.JobID {
		return status
	}
	if fresh, locked := m.heal(ctx); locked {
		return fresh
	}
	return status
}

// heal tries the job lock and, if it is free, re-reads the record while
// holding it. The snapshot Status acted on may predate an epilogue that
// finished in the meantime, so only a record that is still active under the
// lease is reset. It reports whether the lock was taken, along with the
// record read under the lease.
func (m *Manager) heal(ctx context.Context) (jobstate.JobStatus, bool) {
	logger := logging.WithContext(ctx, m.logger)
	lease, ok, err := m.locker.TryAcquire(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "job lock check failed", "job_lock_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check lock backend connectivity"),
			logging.String(logging.FieldImpact, "a stale active status cannot be healed until the lock backend answers"),
		)
		return jobstate.JobStatus{}, false
	}
	if !ok {
		return jobstate.JobStatus{}, false
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logging.WarnWithContext(logger, "heal lease release failed", "job_lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "admissions stay busy until this process exits"),
			)
		}
	}()

	// Runners reset the record before releasing the lock, so anything still
	// active while this lease is held has lost its holder.
	stale := m.tracker.Read(ctx)
	if stale.Degraded || !stale.Status.Active() {
		return stale, true
	}

	cause := services.Wrap(services.ErrTransient, string(stale.Status), "render", "runner stopped before finishing", nil)
	if len(stale.Targets) > 0 {
		m.renderer.Abandon(ctx, stale.Targets, cause)
	}
	message, errText := terminalMessage(jobstate.StatusError, cause)
	m.tracker.Reset(ctx, &jobstate.Outcome{
		JobID:      stale.JobID,
		Status:     jobstate.StatusError,
		Message:    message,
		Error:      errText,
		FinishedAt: m.now(),
	})
	m.metrics.Heal()
	logging.WarnWithContext(logger, "healed stale job status", "job_status_healed",
		logging.String(logging.FieldJobID, stale.JobID),
		logging.String("stale_status", string(stale.Status)),
		logging.String(logging.FieldTarget, targetList(stale.Targets)),
		logging.String(logging.FieldErrorHint, "check logs of the process that ran this job"),
		logging.String(logging.FieldImpact, "the interrupted job was recorded as failed"),
	)
	return m.tracker.Read(ctx), true
}

// CancelResult is the answer to RequestCancel.
type CancelResult struct {
	Requested bool          `json:"requested"`
	JobID     string        `json:"job_id,omitempty"`
	Kind      jobstate.Kind `json:"kind,omitempty"`
	Targets   []entity.Ref  `json:"targets,omitempty"`
	// Degraded is set when the status store was unreachable, so a job in
	// another process could not be flagged.
	Degraded bool `json:"degraded,omitempty"`
}

// RequestCancel asks the active job to stop and returns immediately. The
// runner observes the request on its next poll. Paired jobs need confirm set.
// Repeated requests are harmless.
func (m *Manager) RequestCancel(ctx context.Context, confirm bool) (CancelResult, error) {
	status := m.Status(ctx)
	if !status.Status.Active() {
		return CancelResult{}, nil
	}
	if status.Kind == jobstate.KindPaired && !confirm {
		return CancelResult{JobID: status.JobID, Kind: status.Kind, Targets: status.Targets}, ErrConfirmationRequired
	}
	local := m.current()
	owned := local != nil && local.id == status.JobID
	if owned {
		local.cancel.Store(true)
	}
	requested := m.tracker.RequestCancel(ctx) || owned
	if requested {
		logging.WithContext(ctx, m.logger).Info("render cancel requested",
			logging.String(logging.FieldEventType, "job_cancel_requested"),
			logging.String(logging.FieldJobID, status.JobID),
		)
	}
	return CancelResult{
		Requested: requested,
		JobID:     status.JobID,
		Kind:      status.Kind,
		Targets:   status.Targets,
		Degraded:  status.Degraded,
	}, nil
}
