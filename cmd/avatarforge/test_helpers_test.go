package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"avatarforge/internal/config"
	"avatarforge/internal/database"
	"avatarforge/internal/entity"
	"avatarforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "avatarforge.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedFAQ stores a chatbot and one of its FAQs in the configured database.
func (e *cliTestEnv) seedFAQ(t *testing.T, faqID int64) {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(e.cfg.Database.SQLitePath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	store, err := entity.NewSQLiteStore(ctx, db)
	if err != nil {
		t.Fatalf("entity store: %v", err)
	}
	icon := testsupport.WriteAvatar(t, e.cfg, "ana.png")
	if err := store.PutChatbot(ctx, entity.Chatbot{ID: 1, Name: "Ana", Gender: "f", IconPath: icon}); err != nil {
		t.Fatalf("PutChatbot: %v", err)
	}
	if err := store.PutFAQ(ctx, entity.FAQ{ID: faqID, ChatbotID: 1, Answer: "Abrimos às nove."}); err != nil {
		t.Fatalf("PutFAQ: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
