package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/metrics"
	"avatarforge/internal/services"
)

// Request names the entity to render. Scope faq renders a single answer clip;
// scope chatbot renders the greeting and idle pair.
type Request struct {
	Scope entity.Scope
	ID    int64
}

// ParseRequest builds a Request from user input such as ("chatbot", "3").
func ParseRequest(scope, id string) (Request, error) {
	parsed, ok := entity.ParseScope(strings.TrimSpace(scope))
	if !ok {
		return Request{}, services.Wrap(services.ErrValidation, "admission", "parse request", fmt.Sprintf("unknown kind %q", scope), nil)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return Request{}, services.Wrap(services.ErrValidation, "admission", "parse request", fmt.Sprintf("invalid id %q", id), nil)
	}
	return Request{Scope: parsed, ID: n}, nil
}

// Job returns the job kind and target slots for the request.
func (r Request) Job() (jobstate.Kind, []entity.Ref, error) {
	if r.ID <= 0 {
		return "", nil, services.Wrap(services.ErrValidation, "admission", "request", fmt.Sprintf("invalid id %d", r.ID), nil)
	}
	switch r.Scope {
	case entity.ScopeFAQ:
		return jobstate.KindSingle, []entity.Ref{entity.FAQAnswer(r.ID)}, nil
	case entity.ScopeChatbot:
		return jobstate.KindPaired, entity.ChatbotPair(r.ID), nil
	default:
		return "", nil, services.Wrap(services.ErrValidation, "admission", "request", fmt.Sprintf("unknown scope %q", r.Scope), nil)
	}
}

// Admission is the answer to RequestJob.
type Admission struct {
	Accepted bool   `json:"accepted"`
	Busy     bool   `json:"busy,omitempty"`
	JobID    string `json:"job_id,omitempty"`
}

// activeJob is the in-process view of the job this Manager runs.
type activeJob struct {
	id      string
	kind    jobstate.Kind
	targets []entity.Ref
	started time.Time

	cancel atomic.Bool

	pollMu   sync.Mutex
	lastPoll time.Time
}

// RequestJob tries to take the render slot. It never waits for a running
// job: when the lock is held elsewhere it returns Busy. On success the status
// record is queued and the runner is launched before RequestJob returns.
func (m *Manager) RequestJob(ctx context.Context, req Request) (Admission, error) {
	kind, targets, err := req.Job()
	if err != nil {
		return Admission{}, err
	}
	logger := logging.WithContext(ctx, m.logger)

	lease, ok, err := m.locker.TryAcquire(ctx)
	if err != nil {
		m.metrics.Admission(metrics.AdmissionError)
		return Admission{}, services.Wrap(services.ErrTransient, "admission", "acquire job lock", "", err)
	}
	if !ok {
		m.metrics.Admission(metrics.AdmissionBusy)
		logger.Info("render job rejected; another job is active",
			logging.String(logging.FieldEventType, "job_busy"),
			logging.Target(targets[0]),
		)
		return Admission{Busy: true}, nil
	}

	job := &activeJob{
		id:      m.newJobID(),
		kind:    kind,
		targets: targets,
		started: m.now(),
	}
	m.mu.Lock()
	m.active = job
	m.mu.Unlock()

	jobCtx := services.WithJobID(ctx, job.id)
	m.tracker.Write(jobCtx, jobstate.Admitted(job.id, kind, targets, job.started))
	m.renderer.MarkQueued(jobCtx, targets)
	m.metrics.Admission(metrics.AdmissionAccepted)
	logging.WithContext(jobCtx, m.logger).Info("render job admitted",
		logging.String(logging.FieldEventType, "job_admitted"),
		logging.String("kind", string(kind)),
		logging.String(logging.FieldTarget, targetList(targets)),
	)

	m.wg.Add(1)
	m.launch(func() { m.run(job, lease) })
	return Admission{Accepted: true, JobID: job.id}, nil
}

func targetList(refs []entity.Ref) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = ref.String()
	}
	return strings.Join(parts, ",")
}
