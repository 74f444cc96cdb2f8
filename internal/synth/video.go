package synth

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"avatarforge/internal/config"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
	"avatarforge/internal/toolexec"
)

const videoStage = "video"

// VideoRequest is one SadTalker run. An empty DrivenAudio selects idle mode.
type VideoRequest struct {
	SourceImage string
	DrivenAudio string
	OutputDir   string
}

// Idle reports whether the request renders a silent idle clip.
func (r VideoRequest) Idle() bool {
	return r.DrivenAudio == ""
}

// Video renders clips with SadTalker.
type Video struct {
	cfg    config.Video
	runner *toolexec.Runner
	logger *slog.Logger
}

// NewVideo configures the SadTalker invocation.
func NewVideo(cfg config.Video, runner *toolexec.Runner, logger *slog.Logger) *Video {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Video{cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "synth")}
}

// EnhancerEnabled reports whether the enhancement pass will be requested.
func (v *Video) EnhancerEnabled() bool {
	if strings.TrimSpace(v.cfg.Enhancer) == "" || v.cfg.EnhancerWeights == "" {
		return false
	}
	info, err := os.Stat(v.cfg.EnhancerWeights)
	return err == nil && info.Mode().IsRegular()
}

// Command builds the inference command line.
func (v *Video) Command(req VideoRequest) toolexec.Command {
	module := v.cfg.Module
	if module == "" {
		module = "src.inference"
	}
	args := []string{"-m", module}
	if req.Idle() {
		args = append(args, "--use_idle_mode", "--length_of_audio", strconv.Itoa(v.cfg.IdleSeconds))
	} else {
		args = append(args, "--driven_audio", req.DrivenAudio)
	}
	args = append(args, "--source_image", req.SourceImage)
	if v.cfg.CheckpointDir != "" {
		args = append(args, "--checkpoint_dir", v.cfg.CheckpointDir)
	}
	args = append(args,
		"--result_dir", req.OutputDir,
		"--size", strconv.Itoa(v.cfg.Size),
		"--batch_size", strconv.Itoa(v.cfg.BatchSize),
		"--preprocess", v.cfg.Preprocess,
	)
	if strings.HasPrefix(v.cfg.Preprocess, config.PreprocessFull) {
		args = append(args, "--still")
	}
	if v.EnhancerEnabled() {
		args = append(args, "--enhancer", v.cfg.Enhancer)
	}
	return toolexec.Command{Name: videoStage, Binary: v.cfg.Python, Args: args, Dir: v.cfg.Workdir}
}

// Render runs SadTalker. Output lands somewhere under req.OutputDir.
func (v *Video) Render(ctx context.Context, req VideoRequest, cancelled toolexec.CancelFunc) error {
	if _, err := os.Stat(req.SourceImage); err != nil {
		return services.Wrap(services.ErrValidation, videoStage, "render", "avatar image not found: "+req.SourceImage, err)
	}
	if strings.TrimSpace(v.cfg.Enhancer) != "" && !v.EnhancerEnabled() {
		v.logger.Info("enhancer weights missing; rendering without enhancement",
			logging.String("enhancer", v.cfg.Enhancer),
			logging.String("weights", v.cfg.EnhancerWeights),
			logging.String(logging.FieldEventType, "enhancer_skipped"),
		)
	}
	_, err := v.runner.Run(ctx, v.Command(req), cancelled)
	return err
}
