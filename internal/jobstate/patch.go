package jobstate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"avatarforge/internal/entity"
)

// Patch is a partial update. Nil fields are left unchanged. Progress never
// decreases unless the patch also moves the record to queued, which starts a
// new job.
type Patch struct {
	JobID           *string
	Status          *Status
	Kind            *Kind
	Targets         []entity.Ref
	Progress        *int
	Message         *string
	Error           *string
	CancelRequested *bool
	StartedAt       *time.Time
}

// Admitted is the patch written when a job enters queued.
func Admitted(jobID string, kind Kind, targets []entity.Ref, at time.Time) Patch {
	status := StatusQueued
	progress := 0
	msg := "Queued"
	empty := ""
	cancel := false
	return Patch{
		JobID:           &jobID,
		Status:          &status,
		Kind:            &kind,
		Targets:         targets,
		Progress:        &progress,
		Message:         &msg,
		Error:           &empty,
		CancelRequested: &cancel,
		StartedAt:       &at,
	}
}

// Step reports progress with a message.
func Step(progress int, message string) Patch {
	return Patch{Progress: &progress, Message: &message}
}

// Transition moves the record to status with a message.
func Transition(status Status, message string) Patch {
	return Patch{Status: &status, Message: &message}
}

// Finished is the terminal patch written before the epilogue resets the row.
func Finished(status Status, message, errText string) Patch {
	p := Transition(status, message)
	p.Error = &errText
	if status == StatusDone {
		full := 100
		p.Progress = &full
	}
	return p
}

func (p Patch) restartsJob() bool {
	return p.Status != nil && *p.Status == StatusQueued
}

// Apply mutates s in place with the same rules the SQL backends use.
func (p Patch) Apply(s *JobStatus, now time.Time) {
	if p.JobID != nil {
		s.JobID = *p.JobID
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Kind != nil {
		s.Kind = *p.Kind
	}
	if p.Targets != nil {
		s.Targets = append([]entity.Ref(nil), p.Targets...)
	}
	if p.Progress != nil {
		next := clampProgress(*p.Progress)
		if p.restartsJob() || next > s.Progress {
			s.Progress = next
		}
	}
	if p.Message != nil {
		s.Message = *p.Message
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	if p.CancelRequested != nil {
		s.CancelRequested = *p.CancelRequested
	}
	if p.StartedAt != nil {
		at := p.StartedAt.UTC()
		s.StartedAt = &at
	}
	s.UpdatedAt = now
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// dialect captures the SQL differences between the backends.
type dialect struct {
	placeholder func(n int) string
	greatest    string
	timeValue   func(time.Time) any
	boolValue   func(bool) any
}

// assignments renders the SET clause for p plus its arguments. updated_at is
// always bumped.
func (p Patch) assignments(d dialect, now time.Time) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, d.placeholder(len(args))))
	}

	if p.JobID != nil {
		add("job_id = %s", nullableString(*p.JobID))
	}
	if p.Status != nil {
		add("status = %s", string(*p.Status))
	}
	if p.Kind != nil {
		add("kind = %s", nullableString(string(*p.Kind)))
	}
	if p.Targets != nil {
		encoded, err := encodeTargets(p.Targets)
		if err != nil {
			return "", nil, err
		}
		add("targets_json = %s", encoded)
	}
	if p.Progress != nil {
		if p.restartsJob() {
			add("progress = %s", clampProgress(*p.Progress))
		} else {
			add("progress = "+d.greatest+"(progress, %s)", clampProgress(*p.Progress))
		}
	}
	if p.Message != nil {
		add("message = %s", *p.Message)
	}
	if p.Error != nil {
		add("error_message = %s", nullableString(*p.Error))
	}
	if p.CancelRequested != nil {
		add("cancel_requested = %s", d.boolValue(*p.CancelRequested))
	}
	if p.StartedAt != nil {
		add("started_at = %s", d.timeValue(p.StartedAt.UTC()))
	}
	add("updated_at = %s", d.timeValue(now.UTC()))
	return strings.Join(sets, ", "), args, nil
}

func encodeTargets(targets []entity.Ref) (any, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(targets)
	if err != nil {
		return nil, fmt.Errorf("encode targets: %w", err)
	}
	return string(data), nil
}

func decodeTargets(raw string) ([]entity.Ref, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var targets []entity.Ref
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	return targets, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
