package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/services"
	"avatarforge/internal/workflow"
)

type fakeJobs struct {
	admission workflow.Admission
	admitErr  error
	requests  []workflow.Request
	status    jobstate.JobStatus
	cancel    workflow.CancelResult
	cancelErr error
	confirms  []bool
}

func (f *fakeJobs) RequestJob(_ context.Context, req workflow.Request) (workflow.Admission, error) {
	f.requests = append(f.requests, req)
	return f.admission, f.admitErr
}

func (f *fakeJobs) Status(context.Context) jobstate.JobStatus { return f.status }

func (f *fakeJobs) RequestCancel(_ context.Context, confirm bool) (workflow.CancelResult, error) {
	f.confirms = append(f.confirms, confirm)
	return f.cancel, f.cancelErr
}

func serve(t *testing.T, srv *apiServer, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func TestRenderJobAccepted(t *testing.T) {
	jobs := &fakeJobs{admission: workflow.Admission{Accepted: true, JobID: "job-1"}}
	srv := newAPIServer("", "", jobs, nil, nil)

	w := serve(t, srv, http.MethodPost, "/api/render/jobs", `{"kind":"faq","id":7}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp workflow.Admission
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Accepted || resp.JobID != "job-1" {
		t.Fatalf("unexpected admission %+v", resp)
	}
	if len(jobs.requests) != 1 || jobs.requests[0] != (workflow.Request{Scope: entity.ScopeFAQ, ID: 7}) {
		t.Fatalf("unexpected requests %+v", jobs.requests)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestRenderJobBusy(t *testing.T) {
	jobs := &fakeJobs{admission: workflow.Admission{Busy: true}}
	srv := newAPIServer("", "", jobs, nil, nil)

	w := serve(t, srv, http.MethodPost, "/api/render/jobs", `{"kind":"chatbot","id":3}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"busy":true`) {
		t.Fatalf("expected busy flag, got %s", w.Body.String())
	}
}

func TestRenderJobRejectsBadInput(t *testing.T) {
	jobs := &fakeJobs{}
	srv := newAPIServer("", "", jobs, nil, nil)
	for _, body := range []string{`{"kind":"user","id":1}`, `{"kind":"faq","id":0}`, `{"kind":`, `{"kind":"faq","id":1,"extra":true}`} {
		if w := serve(t, srv, http.MethodPost, "/api/render/jobs", body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
	if len(jobs.requests) != 0 {
		t.Fatalf("invalid requests must not reach the manager: %+v", jobs.requests)
	}
}

func TestRenderJobAdmissionFailure(t *testing.T) {
	jobs := &fakeJobs{admitErr: services.Wrap(services.ErrTransient, "admission", "acquire job lock", "", errors.New("db down"))}
	srv := newAPIServer("", "", jobs, nil, nil)
	if w := serve(t, srv, http.MethodPost, "/api/render/jobs", `{"kind":"faq","id":1}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	jobs := &fakeJobs{status: jobstate.JobStatus{JobID: "job-1", Status: jobstate.StatusProcessing, Progress: 42}}
	srv := newAPIServer("", "", jobs, nil, nil)

	w := serve(t, srv, http.MethodGet, "/api/render/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status jobstate.JobStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != jobstate.StatusProcessing || status.Progress != 42 {
		t.Fatalf("unexpected status %+v", status)
	}

	if w := serve(t, srv, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health expected 200, got %d", w.Code)
	}
	jobs.status.Degraded = true
	if w := serve(t, srv, http.MethodGet, "/api/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded health expected 503, got %d", w.Code)
	}
}

func TestCancelRequiresConfirmationForPairedJobs(t *testing.T) {
	jobs := &fakeJobs{
		cancel:    workflow.CancelResult{Kind: jobstate.KindPaired, Targets: entity.ChatbotPair(3)},
		cancelErr: workflow.ErrConfirmationRequired,
	}
	srv := newAPIServer("", "", jobs, nil, nil)

	w := serve(t, srv, http.MethodPost, "/api/render/cancel", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"confirmation_required":true`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	jobs.cancelErr = nil
	jobs.cancel = workflow.CancelResult{Requested: true, Kind: jobstate.KindPaired}
	w = serve(t, srv, http.MethodPost, "/api/render/cancel", `{"confirm_delete":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(jobs.confirms) != 2 || jobs.confirms[0] || !jobs.confirms[1] {
		t.Fatalf("unexpected confirm flags %v", jobs.confirms)
	}
}

func TestAuthMiddleware(t *testing.T) {
	jobs := &fakeJobs{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	srv := newAPIServer("", "secret", jobs, metrics, nil)

	if w := serve(t, srv, http.MethodGet, "/api/render/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, srv, http.MethodGet, "/api/render/status", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, srv, http.MethodGet, "/api/render/status", "", "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := serve(t, srv, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics should not require the API token, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newAPIServer("", "", &fakeJobs{}, nil, nil)
	if w := serve(t, srv, http.MethodGet, "/api/render/jobs", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
