package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestRecorderExposesCounters(t *testing.T) {
	r := New()
	r.Admission(AdmissionAccepted)
	r.Admission(AdmissionBusy)
	r.Admission(AdmissionBusy)
	r.JobStarted()
	r.ObserveStage("video", 2*time.Second, errors.New("boom"))
	r.JobFinished("single", "error", 3*time.Second)
	r.Heal()

	body := scrape(t, r)
	for _, want := range []string{
		`avatarforge_admissions_total{result="busy"} 2`,
		`avatarforge_admissions_total{result="accepted"} 1`,
		`avatarforge_jobs_total{kind="single",outcome="error"} 1`,
		`avatarforge_stage_duration_seconds_count{result="error",stage="video"} 1`,
		`avatarforge_job_active 0`,
		`avatarforge_status_heals_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Admission(AdmissionAccepted)
	r.JobStarted()
	r.JobFinished("paired", "done", time.Second)
	r.ObserveStage("speech", time.Second, nil)
	r.Heal()
	if r.Handler() == nil {
		t.Fatal("nil recorder should still return a handler")
	}
}
