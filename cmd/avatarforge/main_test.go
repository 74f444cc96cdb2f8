package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avatarforge/internal/jobstate"
	"avatarforge/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "sqlite")
	requireContains(t, out, "Job lock")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("s3cret-token"))

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "s3cret-token") {
		t.Fatalf("api token leaked into output:\n%s", out)
	}
	requireContains(t, out, "api_token = ")
	requireContains(t, out, "********")
	requireContains(t, out, "[database]")
}

func TestDoctorPassesWithHealthyConfig(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Results directory")
	requireContains(t, out, "Database")
	requireContains(t, out, "All required checks passed")
}

func TestDoctorFailsWhenVoiceMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.Remove(env.cfg.Speech.VoiceMale); err != nil {
		t.Fatalf("remove voice: %v", err)
	}

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatalf("expected doctor to fail, output:\n%s", out)
	}
	requireContains(t, out, "FAIL")
}

func TestRenderFAQReportsOutcome(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedFAQ(t, 7)

	out, _, err := runCLI(t, []string{"render", "faq", "7"}, env.configPath)
	if err != nil {
		t.Fatalf("render: %v\n%s", err, out)
	}
	requireContains(t, out, "Admitted job")
	requireContains(t, out, "Done: Completed")
	artifact := filepath.Join(env.cfg.Paths.ResultsDir, "faq", "7")
	requireContains(t, out, artifact)

	out, _, err = runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status jobstate.JobStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if status.Status != jobstate.StatusIdle || status.Last == nil || status.Last.Status != jobstate.StatusDone {
		t.Fatalf("unexpected status %+v", status)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status table: %v", err)
	}
	requireContains(t, out, "Last outcome")
	requireContains(t, out, "Done - Completed")
}

func TestRenderMissingFAQFails(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"render", "faq", "99"}, env.configPath)
	if err == nil {
		t.Fatalf("expected render of a missing FAQ to fail, output:\n%s", out)
	}
	requireContains(t, err.Error(), "render failed")
}

func TestRenderRejectsBadID(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"render", "chatbot", "abc"}, env.configPath); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestRenderDetachNeedsDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Paths.APIBind = "127.0.0.1:1"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"render", "faq", "7", "--detach"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "avatarforge serve") {
		t.Fatalf("expected daemon connection error, got %v", err)
	}
}

func TestCancelWithoutJob(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cancel"}, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No render job is running")
}

func TestStatusPrintsIdleRecord(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Status")
	requireContains(t, out, "Idle")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("status --json is not JSON: %v\n%s", err, out)
	}
	if decoded["status"] != "idle" {
		t.Fatalf("unexpected status payload %v", decoded)
	}
}

func TestStagingCleanRemovesOldWorkspaces(t *testing.T) {
	env := setupCLITestEnv(t)
	old := filepath.Join(env.cfg.Paths.ResultsDir, "chatbot", "3", "_tmp", "run-old")
	fresh := filepath.Join(env.cfg.Paths.ResultsDir, "chatbot", "3", "_tmp", "run-new")
	testsupport.WriteFile(t, filepath.Join(old, "speech.wav"), 4)
	testsupport.WriteFile(t, filepath.Join(fresh, "speech.wav"), 4)
	past := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := runCLI(t, []string{"staging", "clean", "--max-age", "1h"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 workspaces")
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old workspace should be gone (err=%v)", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh workspace should remain: %v", err)
	}
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications are disabled")
}
