package jobstate

import (
	"time"

	"avatarforge/internal/entity"
	"avatarforge/internal/services"
)

// Status is the lifecycle state of the render slot.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether a job owns the slot.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Terminal reports whether s ends a job.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// ParseStatus accepts stored status strings.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusIdle, StatusQueued, StatusProcessing, StatusDone, StatusError, StatusCancelled:
		return Status(value), true
	}
	return "", false
}

// TerminalStatus maps the runner result to the status it ends in.
func TerminalStatus(err error) Status {
	switch {
	case err == nil:
		return StatusDone
	case services.IsCancellation(err):
		return StatusCancelled
	default:
		return StatusError
	}
}

// Kind is the job shape.
type Kind string

const (
	KindSingle Kind = "single"
	KindPaired Kind = "paired"
)

// Outcome is the result of the most recent finished job, kept after reset.
type Outcome struct {
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// JobStatus is a snapshot of the singleton record.
type JobStatus struct {
	JobID           string       `json:"job_id,omitempty"`
	Status          Status       `json:"status"`
	Kind            Kind         `json:"kind,omitempty"`
	Targets         []entity.Ref `json:"targets,omitempty"`
	Progress        int          `json:"progress"`
	Message         string       `json:"message"`
	Error           string       `json:"error,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Last            *Outcome     `json:"last,omitempty"`
	// Degraded marks a snapshot served from the in-process fallback.
	Degraded bool `json:"degraded,omitempty"`
}

// Idle returns the reset record.
func Idle(now time.Time, last *Outcome) JobStatus {
	return JobStatus{Status: StatusIdle, UpdatedAt: now, Last: last}
}
