package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarforge/internal/config"
	"avatarforge/internal/workflow"
)

// submitToDaemon posts the job to the API of a running `avatarforge serve`.
func submitToDaemon(ctx context.Context, out io.Writer, cfg *config.Config, req workflow.Request) error {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("--detach needs paths.api_bind so the job can be handed to the daemon")
	}
	body, err := json.Marshal(map[string]any{"kind": req.Scope, "id": req.ID})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+bind+"/api/render/jobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w; start it with `avatarforge serve`", bind, err)
	}
	defer resp.Body.Close()

	var admission workflow.Admission
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	switch resp.StatusCode {
	case http.StatusAccepted:
		if err := json.Unmarshal(payload, &admission); err != nil {
			return fmt.Errorf("decode admission: %w", err)
		}
		fmt.Fprintf(out, "Submitted job %s for %s %d\n", admission.JobID, req.Scope, req.ID)
		return nil
	case http.StatusConflict:
		return errors.New("another render is in progress")
	default:
		return fmt.Errorf("daemon rejected the job: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
}
