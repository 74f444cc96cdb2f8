package jobstate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	greatest:    "GREATEST",
	timeValue:   func(t time.Time) any { return t.UTC() },
	boolValue:   func(b bool) any { return b },
}

// PgBackend stores the record in the shared Postgres database so every worker
// host sees the same job.
type PgBackend struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPgBackend creates the table and seeds the row when missing.
func NewPgBackend(ctx context.Context, pool *pgxpool.Pool) (*PgBackend, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create job status table: %w", err)
	}
	b := &PgBackend{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	if _, err := pool.Exec(ctx,
		`INSERT INTO render_job_status (id, status, updated_at) VALUES (1, 'idle', $1) ON CONFLICT (id) DO NOTHING`,
		b.now(),
	); err != nil {
		return nil, fmt.Errorf("seed job status row: %w", err)
	}
	return b, nil
}

func (b *PgBackend) Read(ctx context.Context) (JobStatus, error) {
	var (
		jobID, kind, targets, errText      *string
		statusRaw, message                 string
		progress                           int32
		cancel                             bool
		startedAt, lastFinishedAt          *time.Time
		updatedAt                          time.Time
		lastJobID, lastStatus, lastMessage *string
		lastError                          *string
	)
	err := b.pool.QueryRow(ctx, `SELECT `+statusColumns+` FROM render_job_status WHERE id = 1`).Scan(
		&jobID, &statusRaw, &kind, &targets, &progress, &message, &errText, &cancel,
		&startedAt, &updatedAt, &lastJobID, &lastStatus, &lastMessage, &lastError, &lastFinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobStatus{}, errors.New("job status row missing")
	}
	if err != nil {
		return JobStatus{}, fmt.Errorf("read job status: %w", err)
	}

	status, ok := ParseStatus(statusRaw)
	if !ok {
		return JobStatus{}, fmt.Errorf("read job status: unknown status %q", statusRaw)
	}
	refs, err := decodeTargets(deref(targets))
	if err != nil {
		return JobStatus{}, err
	}
	out := JobStatus{
		JobID:           deref(jobID),
		Status:          status,
		Kind:            Kind(deref(kind)),
		Targets:         refs,
		Progress:        int(progress),
		Message:         message,
		Error:           deref(errText),
		CancelRequested: cancel,
		UpdatedAt:       updatedAt.UTC(),
	}
	if startedAt != nil {
		at := startedAt.UTC()
		out.StartedAt = &at
	}
	if lastStatus != nil {
		out.Last = &Outcome{
			JobID:   deref(lastJobID),
			Status:  Status(*lastStatus),
			Message: deref(lastMessage),
			Error:   deref(lastError),
		}
		if lastFinishedAt != nil {
			out.Last.FinishedAt = lastFinishedAt.UTC()
		}
	}
	return out, nil
}

func (b *PgBackend) Write(ctx context.Context, patch Patch) error {
	sets, args, err := patch.assignments(postgresDialect, b.now())
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, `UPDATE render_job_status SET `+sets+` WHERE id = 1`, args...); err != nil {
		return fmt.Errorf("write job status: %w", err)
	}
	return nil
}

func (b *PgBackend) RequestCancel(ctx context.Context) (bool, error) {
	tag, err := b.pool.Exec(ctx,
		`UPDATE render_job_status SET cancel_requested = TRUE, updated_at = $1
         WHERE id = 1 AND status IN ('queued', 'processing')`,
		b.now(),
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (b *PgBackend) Reset(ctx context.Context, last *Outcome) error {
	query := fmt.Sprintf(resetAssignments, "FALSE", "$1")
	args := []any{b.now()}
	if last != nil {
		query += `, last_job_id = $2, last_status = $3, last_message = $4, last_error = $5, last_finished_at = $6`
		args = append(args, nullableString(last.JobID), string(last.Status), last.Message,
			nullableString(last.Error), last.FinishedAt.UTC())
	}
	if _, err := b.pool.Exec(ctx, `UPDATE render_job_status SET `+query+` WHERE id = 1`, args...); err != nil {
		return fmt.Errorf("reset job status: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (b *PgBackend) Close() error { return nil }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
