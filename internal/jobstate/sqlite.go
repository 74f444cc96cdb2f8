package jobstate

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"avatarforge/internal/database"
)

//go:embed schema.sql
var sqliteSchema string

// schemaVersion is bumped when render_job_status changes shape.
const schemaVersion = 1

const statusColumns = "job_id, status, kind, targets_json, progress, message, error_message, cancel_requested, started_at, updated_at, last_job_id, last_status, last_message, last_error, last_finished_at"

const resetAssignments = `status = 'idle', job_id = NULL, kind = NULL, targets_json = NULL, progress = 0,
    message = '', error_message = NULL, cancel_requested = %s, started_at = NULL, updated_at = %s`

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	greatest:    "MAX",
	timeValue:   func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
	boolValue: func(b bool) any {
		if b {
			return 1
		}
		return 0
	},
}

// SQLiteBackend stores the record in the local database file.
type SQLiteBackend struct {
	db   *sql.DB
	now  func() time.Time
	owns bool
}

// OpenSQLite opens path and prepares the record. The returned backend owns
// the database handle.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	backend, err := NewSQLiteBackend(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	backend.owns = true
	return backend, nil
}

// NewSQLiteBackend uses an existing handle, which the caller closes.
func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	if err := database.EnsureSQLiteSchema(ctx, db, "jobstate", schemaVersion, sqliteSchema); err != nil {
		return nil, err
	}
	b := &SQLiteBackend{db: db, now: func() time.Time { return time.Now().UTC() }}
	if _, err := database.ExecWithRetry(ctx, db,
		`INSERT INTO render_job_status (id, status, updated_at) VALUES (1, 'idle', ?) ON CONFLICT(id) DO NOTHING`,
		sqliteDialect.timeValue(b.now()),
	); err != nil {
		return nil, fmt.Errorf("seed job status row: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) Read(ctx context.Context) (JobStatus, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM render_job_status WHERE id = 1`)
	var (
		jobID, kind, targets, errText      sql.NullString
		statusRaw, message, updatedRaw     string
		startedRaw                         sql.NullString
		progress, cancel                   int64
		lastJobID, lastStatus, lastMessage sql.NullString
		lastError, lastFinishedRaw         sql.NullString
	)
	if err := row.Scan(&jobID, &statusRaw, &kind, &targets, &progress, &message, &errText, &cancel,
		&startedRaw, &updatedRaw, &lastJobID, &lastStatus, &lastMessage, &lastError, &lastFinishedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobStatus{}, errors.New("job status row missing")
		}
		return JobStatus{}, fmt.Errorf("read job status: %w", err)
	}

	status, ok := ParseStatus(statusRaw)
	if !ok {
		return JobStatus{}, fmt.Errorf("read job status: unknown status %q", statusRaw)
	}
	refs, err := decodeTargets(targets.String)
	if err != nil {
		return JobStatus{}, err
	}
	out := JobStatus{
		JobID:           jobID.String,
		Status:          status,
		Kind:            Kind(kind.String),
		Targets:         refs,
		Progress:        int(progress),
		Message:         message,
		Error:           errText.String,
		CancelRequested: cancel != 0,
		StartedAt:       parseTimePtr(startedRaw),
		UpdatedAt:       parseTime(updatedRaw),
	}
	if lastStatus.Valid {
		out.Last = &Outcome{
			JobID:      lastJobID.String,
			Status:     Status(lastStatus.String),
			Message:    lastMessage.String,
			Error:      lastError.String,
			FinishedAt: parseTime(lastFinishedRaw.String),
		}
	}
	return out, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, patch Patch) error {
	sets, args, err := patch.assignments(sqliteDialect, b.now())
	if err != nil {
		return err
	}
	if _, err := database.ExecWithRetry(ctx, b.db, `UPDATE render_job_status SET `+sets+` WHERE id = 1`, args...); err != nil {
		return fmt.Errorf("write job status: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) RequestCancel(ctx context.Context) (bool, error) {
	res, err := database.ExecWithRetry(ctx, b.db,
		`UPDATE render_job_status SET cancel_requested = 1, updated_at = ?
         WHERE id = 1 AND status IN ('queued', 'processing')`,
		sqliteDialect.timeValue(b.now()),
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) Reset(ctx context.Context, last *Outcome) error {
	now := b.now()
	query := fmt.Sprintf(resetAssignments, "0", "?")
	args := []any{sqliteDialect.timeValue(now)}
	if last != nil {
		query += `, last_job_id = ?, last_status = ?, last_message = ?, last_error = ?, last_finished_at = ?`
		args = append(args, nullableString(last.JobID), string(last.Status), last.Message,
			nullableString(last.Error), sqliteDialect.timeValue(last.FinishedAt))
	}
	if _, err := database.ExecWithRetry(ctx, b.db, `UPDATE render_job_status SET `+query+` WHERE id = 1`, args...); err != nil {
		return fmt.Errorf("reset job status: %w", err)
	}
	return nil
}

// Close releases the handle when the backend opened it.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil || !b.owns {
		return nil
	}
	return b.db.Close()
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
