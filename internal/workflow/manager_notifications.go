package workflow

import (
	"context"
	"errors"
	"time"

	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/notifications"
)

func (m *Manager) notifyOutcome(ctx context.Context, job *activeJob, status jobstate.Status, message string, runErr error, elapsed time.Duration) {
	if m.notifier == nil {
		return
	}
	summary := notifications.Summary{
		JobID:    job.id,
		Kind:     string(job.kind),
		Duration: elapsed,
		Message:  message,
	}
	for _, ref := range job.targets {
		summary.Targets = append(summary.Targets, ref.String())
	}

	var err error
	switch status {
	case jobstate.StatusDone:
		err = m.notifier.NotifyRenderCompleted(ctx, summary)
	case jobstate.StatusCancelled:
		err = m.notifier.NotifyRenderCancelled(ctx, summary)
	default:
		err = m.notifier.NotifyRenderFailed(ctx, summary, runErr)
	}
	if err == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, outcome notification skipped")
		return
	}
	logging.WarnWithContext(logger, "outcome notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
		logging.String(logging.FieldImpact, "no push notice for this job"),
	)
}
