package jobstate

import (
	"context"
	"sync"
	"time"
)

// Backend is durable storage for the singleton record.
type Backend interface {
	Read(ctx context.Context) (JobStatus, error)
	Write(ctx context.Context, patch Patch) error
	// RequestCancel sets the cancel flag only while a job is active and
	// reports whether it did.
	RequestCancel(ctx context.Context) (bool, error)
	// Reset returns the record to idle, recording last when non-nil.
	Reset(ctx context.Context, last *Outcome) error
	Close() error
}

// MemoryBackend keeps the record in process. It backs single-process tools
// and tests.
type MemoryBackend struct {
	mu     sync.Mutex
	status JobStatus
	now    func() time.Time
}

// NewMemoryBackend starts idle.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{status: Idle(time.Now().UTC(), nil), now: func() time.Time { return time.Now().UTC() }}
}

func (m *MemoryBackend) Read(context.Context) (JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStatus(m.status), nil
}

func (m *MemoryBackend) Write(_ context.Context, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	patch.Apply(&m.status, m.now())
	return nil
}

func (m *MemoryBackend) RequestCancel(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.Status.Active() {
		return false, nil
	}
	m.status.CancelRequested = true
	m.status.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryBackend) Reset(_ context.Context, last *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last == nil {
		last = m.status.Last
	}
	m.status = Idle(m.now(), cloneOutcome(last))
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func cloneStatus(s JobStatus) JobStatus {
	out := s
	if s.Targets != nil {
		out.Targets = append(out.Targets[:0:0], s.Targets...)
	}
	if s.StartedAt != nil {
		at := *s.StartedAt
		out.StartedAt = &at
	}
	out.Last = cloneOutcome(s.Last)
	return out
}

func cloneOutcome(o *Outcome) *Outcome {
	if o == nil {
		return nil
	}
	copied := *o
	return &copied
}
