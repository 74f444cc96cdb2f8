package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv applies .env files found next to the config file and in the
// working directory. Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := make([]string, 0, 2)
	if strings.TrimSpace(configDir) != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ".env")
		if len(candidates) == 0 || candidates[0] != local {
			candidates = append(candidates, local)
		}
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

type envString struct {
	name   string
	target *string
}

type envInt struct {
	name   string
	target *int
}

// applyEnv overlays environment variables onto file values. Names follow the
// backoffice .env conventions so existing deployments keep working.
func (c *Config) applyEnv() error {
	strs := []envString{
		{"DATABASE_URL", &c.Database.DSN},
		{"AVATARFORGE_DB_DRIVER", &c.Database.Driver},
		{"RESULTS_DIR", &c.Paths.ResultsDir},
		{"ICON_PATH", &c.Paths.AvatarDir},
		{"AVATARFORGE_API_TOKEN", &c.Paths.APIToken},
		{"PIPER_BINARY", &c.Speech.Binary},
		{"PIPER_VOICE_MALE", &c.Speech.VoiceMale},
		{"PIPER_VOICE_FEMALE", &c.Speech.VoiceFemale},
		{"PIPER_VOICE_DEFAULT", &c.Speech.VoiceDefault},
		{"SADTALKER_DIR", &c.Video.Workdir},
		{"SADTALKER_PYTHON", &c.Video.Python},
		{"SADTALKER_PREPROCESS_DEFAULT", &c.Video.Preprocess},
		{"SADTALKER_ENHANCER_DEFAULT", &c.Video.Enhancer},
		{"NTFY_TOPIC", &c.Notifications.NtfyTopic},
	}
	for _, entry := range strs {
		if value, ok := os.LookupEnv(entry.name); ok && strings.TrimSpace(value) != "" {
			*entry.target = strings.TrimSpace(value)
		}
	}

	ints := []envInt{
		{"SADTALKER_SIZE_DEFAULT", &c.Video.Size},
		{"SADTALKER_BATCH_SIZE_DEFAULT", &c.Video.BatchSize},
	}
	for _, entry := range ints {
		value, ok := os.LookupEnv(entry.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", entry.name, value)
		}
		*entry.target = parsed
	}
	return nil
}
