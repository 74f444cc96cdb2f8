package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
	"avatarforge/internal/staging"
	"avatarforge/internal/synth"
	"avatarforge/internal/toolexec"
)

// Stage names used for logging context and metrics.
const (
	StagePrepare = "prepare"
	StageSpeech  = "speech"
	StageVideo   = "video"
	StagePromote = "promote"
)

// Job is the work handed to the pipeline.
type Job struct {
	ID      string
	Kind    jobstate.Kind
	Targets []entity.Ref
}

// Hooks connect the pipeline to the runner. Both fields may be nil.
type Hooks struct {
	Progress  func(percent int, message string)
	Cancelled func() bool
}

func (h Hooks) report(percent int, message string) {
	if h.Progress != nil {
		h.Progress(percent, message)
	}
}

func (h Hooks) cancelled() bool {
	return h.Cancelled != nil && h.Cancelled()
}

// Artifact is a promoted clip.
type Artifact struct {
	Ref  entity.Ref
	Path string
}

// SpeechSynthesizer turns text into a wav file.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, gender, outWav string, cancelled toolexec.CancelFunc) error
}

// VideoRenderer renders a clip somewhere under the request's output dir.
type VideoRenderer interface {
	Render(ctx context.Context, req synth.VideoRequest, cancelled toolexec.CancelFunc) error
}

// StageObserver receives stage timings.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Options wires a Pipeline.
type Options struct {
	Store            entity.Store
	Staging          *staging.Manager
	Speech           SpeechSynthesizer
	Video            VideoRenderer
	AvatarDir        string
	GreetingTemplate string
	Observer         StageObserver
	Logger           *slog.Logger
	// NewRunID overrides workspace naming in tests.
	NewRunID func() string
}

// Pipeline renders jobs. It holds no per-job state.
type Pipeline struct {
	store     entity.Store
	staging   *staging.Manager
	speech    SpeechSynthesizer
	video     VideoRenderer
	avatarDir string
	greeting  string
	observer  StageObserver
	logger    *slog.Logger
	newRunID  func() string
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("render pipeline: entity store is required")
	case opts.Staging == nil:
		return nil, errors.New("render pipeline: staging manager is required")
	case opts.Speech == nil || opts.Video == nil:
		return nil, errors.New("render pipeline: speech and video synthesizers are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = func() string { return uuid.NewString() }
	}
	return &Pipeline{
		store:     opts.Store,
		staging:   opts.Staging,
		speech:    opts.Speech,
		video:     opts.Video,
		avatarDir: opts.AvatarDir,
		greeting:  opts.GreetingTemplate,
		observer:  opts.Observer,
		logger:    logging.NewComponentLogger(logger, "render"),
		newRunID:  newRunID,
	}, nil
}

// band maps a slot's local progress onto the job's overall bar.
type band struct{ lo, hi int }

func (b band) at(fraction float64) int {
	return b.lo + int(math.Round(fraction*float64(b.hi-b.lo)))
}

func bandsFor(kind jobstate.Kind, n int) []band {
	if kind == jobstate.KindPaired && n == 2 {
		return []band{{10, 50}, {55, 95}}
	}
	return []band{{10, 100}}
}

// Render runs every target slot in order and stops at the first failure.
// Slots that never started receive the same terminal marker as the failing
// one. Finished slots keep their ready marker and artifact.
func (p *Pipeline) Render(ctx context.Context, job Job, hooks Hooks) ([]Artifact, error) {
	if len(job.Targets) == 0 {
		return nil, services.Wrap(services.ErrValidation, StagePrepare, "render", "job has no targets", nil)
	}
	bands := bandsFor(job.Kind, len(job.Targets))
	if len(bands) != len(job.Targets) {
		return nil, services.Wrap(services.ErrValidation, StagePrepare, "render",
			fmt.Sprintf("%s job expects %d targets, got %d", job.Kind, len(bands), len(job.Targets)), nil)
	}

	artifacts := make([]Artifact, 0, len(job.Targets))
	for i, ref := range job.Targets {
		artifact, err := p.renderSlot(ctx, ref, bands[i], hooks)
		if err != nil {
			p.Abandon(ctx, job.Targets[i:], err)
			return artifacts, err
		}
		artifacts = append(artifacts, Artifact{Ref: ref, Path: artifact})
	}
	return artifacts, nil
}

// Abandon writes the terminal marker for refs after err: cancelled (path
// cleared) for cancellations, failed (path kept) otherwise.
func (p *Pipeline) Abandon(ctx context.Context, refs []entity.Ref, err error) {
	marker := entity.MarkerFailed
	var artifact *string
	if services.IsCancellation(err) {
		marker = entity.MarkerCancelled
		empty := ""
		artifact = &empty
	}
	// The job context may already be cancelled; markers must still land.
	writeCtx := context.WithoutCancel(ctx)
	for _, ref := range refs {
		p.writeMarker(writeCtx, ref, marker, artifact)
	}
}

// MarkQueued flags refs as waiting for the render slot.
func (p *Pipeline) MarkQueued(ctx context.Context, refs []entity.Ref) {
	for _, ref := range refs {
		p.writeMarker(ctx, ref, entity.MarkerQueued, nil)
	}
}

func (p *Pipeline) renderSlot(ctx context.Context, ref entity.Ref, b band, hooks Hooks) (string, error) {
	logger := logging.WithContext(ctx, p.logger).With(logging.Target(ref))
	label := slotLabel(ref)

	hooks.report(b.at(0), "Preparing "+label)
	prepCtx := services.WithStage(ctx, StagePrepare)
	started := time.Now()
	text, avatar, gender, err := p.prepare(prepCtx, ref)
	p.observe(StagePrepare, started, err)
	if err != nil {
		return "", err
	}
	if hooks.cancelled() {
		return "", cancelled(StagePrepare)
	}
	p.writeMarker(ctx, ref, entity.MarkerProcessing, nil)

	ws, err := p.staging.Open(ref, p.newRunID())
	if err != nil {
		return "", services.Wrap(services.ErrTransient, StagePrepare, "open workspace", "", err)
	}
	defer func() { _ = ws.Cleanup(context.WithoutCancel(ctx)) }()

	audio := ""
	if !ref.Silent() {
		hooks.report(b.at(1.0/6), "Synthesizing speech for "+label)
		audio = ws.Path("speech.wav")
		started = time.Now()
		err = p.speech.Synthesize(services.WithStage(ctx, StageSpeech), text, gender, audio, hooks.Cancelled)
		p.observe(StageSpeech, started, err)
		if err != nil {
			return "", err
		}
	}

	hooks.report(b.at(4.0/9), "Rendering video for "+label)
	started = time.Now()
	err = p.video.Render(services.WithStage(ctx, StageVideo), synth.VideoRequest{
		SourceImage: avatar,
		DrivenAudio: audio,
		OutputDir:   ws.Dir(),
	}, hooks.Cancelled)
	p.observe(StageVideo, started, err)
	if err != nil {
		return "", err
	}

	hooks.report(b.at(8.0/9), "Finalizing "+label)
	started = time.Now()
	clip, err := ws.Discover()
	if err != nil {
		p.observe(StagePromote, started, err)
		return "", err
	}
	// Last chance to honour a cancel: nothing has replaced the old artifact yet.
	if hooks.cancelled() || ctx.Err() != nil {
		err = cancelled(StagePromote)
		p.observe(StagePromote, started, err)
		return "", err
	}
	artifact, err := ws.Promote(clip)
	p.observe(StagePromote, started, err)
	if err != nil {
		return "", err
	}

	p.writeMarker(ctx, ref, entity.MarkerReady, &artifact)
	hooks.report(b.at(1), label+" ready")
	logger.Info("clip rendered",
		logging.String("artifact", artifact),
		logging.String(logging.FieldEventType, "clip_rendered"),
	)
	return artifact, nil
}

// prepare loads and validates the slot's inputs.
func (p *Pipeline) prepare(ctx context.Context, ref entity.Ref) (text, avatar, gender string, err error) {
	inputs, err := p.store.ReadRenderInputs(ctx, ref)
	if err != nil {
		return "", "", "", err
	}
	switch ref.Slot {
	case entity.SlotGreeting:
		name := strings.TrimSpace(inputs.Name)
		if name == "" {
			return "", "", "", services.Wrap(services.ErrValidation, StagePrepare, "greeting text", "chatbot has no name", nil)
		}
		text = fmt.Sprintf(p.greeting, name)
	case entity.SlotAnswer:
		text = strings.TrimSpace(inputs.Text)
		if text == "" {
			return "", "", "", services.Wrap(services.ErrValidation, StagePrepare, "video text", "text for video is empty", nil)
		}
	}
	avatar, err = ResolveAvatar(p.avatarDir, inputs.AvatarPath)
	if err != nil {
		return "", "", "", err
	}
	return text, avatar, inputs.VoiceGender, nil
}

// ResolveAvatar maps a stored icon path such as /static/icons/ana.png onto the
// file of the same name inside avatarDir.
func ResolveAvatar(avatarDir, iconPath string) (string, error) {
	iconPath = strings.TrimSpace(iconPath)
	if iconPath == "" {
		return "", services.Wrap(services.ErrValidation, StagePrepare, "avatar", "entity has no avatar image", nil)
	}
	if strings.TrimSpace(avatarDir) == "" {
		return "", services.Wrap(services.ErrConfiguration, StagePrepare, "avatar", "avatar_dir is not configured", nil)
	}
	name := path.Base(filepath.ToSlash(iconPath))
	if name == "." || name == "/" || name == ".." {
		return "", services.Wrap(services.ErrValidation, StagePrepare, "avatar", "invalid avatar path "+iconPath, nil)
	}
	candidate := filepath.Join(avatarDir, name)
	info, err := os.Stat(candidate)
	if err != nil || !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrValidation, StagePrepare, "avatar", "avatar image not found: "+candidate, err)
	}
	return candidate, nil
}

func (p *Pipeline) writeMarker(ctx context.Context, ref entity.Ref, marker entity.Marker, artifact *string) {
	if err := p.store.WriteRenderMarker(ctx, ref, marker, artifact); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "entity marker write failed",
			"entity_marker_failed",
			logging.Target(ref),
			logging.String("marker", string(marker)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the entity database"),
			logging.String(logging.FieldImpact, "entity shows a stale render status"),
		)
	}
}

func (p *Pipeline) observe(stage string, started time.Time, err error) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, time.Since(started), err)
	}
}

func cancelled(stage string) error {
	return services.Wrap(services.ErrCancelled, stage, "render", "cancel requested", nil)
}

func slotLabel(ref entity.Ref) string {
	switch ref.Slot {
	case entity.SlotGreeting:
		return "greeting clip"
	case entity.SlotIdle:
		return "idle clip"
	default:
		return "answer clip"
	}
}
