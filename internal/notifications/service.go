package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarforge/internal/config"
)

const userAgent = "avatarforge/0.1.0"

// Summary describes a finished render job.
type Summary struct {
	JobID    string
	Kind     string
	Targets  []string
	Duration time.Duration
	Message  string
}

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyRenderCompleted(ctx context.Context, summary Summary) error
	NotifyRenderFailed(ctx context.Context, summary Summary, err error) error
	NotifyRenderCancelled(ctx context.Context, summary Summary) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
		cancelled: cfg.Notifications.Cancelled,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
	cancelled bool
}

func (n *ntfyService) NotifyRenderCompleted(ctx context.Context, summary Summary) error {
	if !n.completed {
		return nil
	}
	data := payload{
		title:   "avatarforge - Render Complete",
		message: fmt.Sprintf("✅ Rendered %s in %s", describeTargets(summary.Targets), formatDuration(summary.Duration)),
		tags:    []string{"avatarforge", "render", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderFailed(ctx context.Context, summary Summary, err error) error {
	if !n.failed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Render failed for ")
	builder.WriteString(describeTargets(summary.Targets))
	builder.WriteString(": ")
	switch {
	case err != nil:
		builder.WriteString(strings.TrimSpace(err.Error()))
	case strings.TrimSpace(summary.Message) != "":
		builder.WriteString(strings.TrimSpace(summary.Message))
	default:
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "avatarforge - Render Failed",
		message:  builder.String(),
		tags:     []string{"avatarforge", "render", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderCancelled(ctx context.Context, summary Summary) error {
	if !n.cancelled {
		return nil
	}
	data := payload{
		title:   "avatarforge - Render Cancelled",
		message: fmt.Sprintf("Render cancelled for %s after %s", describeTargets(summary.Targets), formatDuration(summary.Duration)),
		tags:    []string{"avatarforge", "render", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "avatarforge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"avatarforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func describeTargets(targets []string) string {
	if len(targets) == 0 {
		return "unknown target"
	}
	return strings.Join(targets, ", ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyRenderCompleted(context.Context, Summary) error     { return nil }
func (noopService) NotifyRenderFailed(context.Context, Summary, error) error { return nil }
func (noopService) NotifyRenderCancelled(context.Context, Summary) error     { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
