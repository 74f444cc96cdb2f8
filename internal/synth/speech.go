package synth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"avatarforge/internal/config"
	"avatarforge/internal/services"
	"avatarforge/internal/toolexec"
)

const speechStage = "speech"

// Voices maps gender codes to piper voice models.
type Voices struct {
	Male    string
	Female  string
	Default string
}

// ForGender picks the model for a gender code: m, f, or anything else.
func (v Voices) ForGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "m":
		return v.Male
	case "f":
		return v.Female
	default:
		return v.Default
	}
}

// Speech renders text to a wav file with piper.
type Speech struct {
	binary string
	voices Voices
	extra  []string
	runner *toolexec.Runner
}

// NewSpeech configures the piper invocation.
func NewSpeech(cfg config.Speech, runner *toolexec.Runner) *Speech {
	return &Speech{
		binary: cfg.Binary,
		voices: Voices{Male: cfg.VoiceMale, Female: cfg.VoiceFemale, Default: cfg.VoiceDefault},
		extra:  append([]string(nil), cfg.ExtraArgs...),
		runner: runner,
	}
}

// Command builds the piper command line.
func (s *Speech) Command(text, model, outWav string) toolexec.Command {
	args := []string{"-m", model, "-t", text, "-f", outWav}
	args = append(args, s.extra...)
	return toolexec.Command{Name: speechStage, Binary: s.binary, Args: args}
}

// Synthesize writes outWav. A missing voice model is a validation failure;
// a non-zero exit or an empty output file is a tool failure.
func (s *Speech) Synthesize(ctx context.Context, text, gender, outWav string, cancelled toolexec.CancelFunc) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrValidation, speechStage, "synthesize", "text is empty", nil)
	}
	model := s.voices.ForGender(gender)
	if model == "" {
		return services.Wrap(services.ErrValidation, speechStage, "select voice", "no voice model configured", nil)
	}
	if _, err := os.Stat(model); err != nil {
		return services.Wrap(services.ErrValidation, speechStage, "select voice", "voice model not found: "+model, err)
	}

	if _, err := s.runner.Run(ctx, s.Command(text, model, outWav), cancelled); err != nil {
		return err
	}
	info, err := os.Stat(outWav)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, speechStage, "synthesize",
			fmt.Sprintf("empty audio file generated: %s", outWav), err)
	}
	return nil
}
