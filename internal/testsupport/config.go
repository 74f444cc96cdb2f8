package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatarforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t         testing.TB
	baseDir   string
	cfg       *config.Config
	videoStep string
}

// NewConfig produces a config seeded with unique temp directories per test.
// Speech and video binaries point at shell stubs that behave like piper and
// SadTalker: the speech stub writes the -f file and the video stub writes an
// mp4 into a timestamped folder under --result_dir.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.AvatarDir = filepath.Join(base, "icons")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.SQLitePath = filepath.Join(base, "state", "avatarforge.db")
	cfgVal.Job.PollIntervalMS = 10
	cfgVal.Job.CancelPollIntervalMS = 20
	cfgVal.Notifications.NtfyTopic = ""

	voices := filepath.Join(base, "voices")
	cfgVal.Speech.VoiceMale = filepath.Join(voices, "male.onnx")
	cfgVal.Speech.VoiceFemale = filepath.Join(voices, "female.onnx")
	cfgVal.Speech.VoiceDefault = cfgVal.Speech.VoiceFemale
	for _, voice := range []string{cfgVal.Speech.VoiceMale, cfgVal.Speech.VoiceFemale} {
		WriteFile(t, voice, 16)
	}
	for _, dir := range []string{cfgVal.Paths.ResultsDir, cfgVal.Paths.AvatarDir, cfgVal.Paths.StateDir, cfgVal.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	binDir := filepath.Join(base, "bin")
	cfgVal.Speech.Binary = WriteStubTool(t, binDir, "piper", speechStub)
	cfgVal.Video.Python = WriteStubTool(t, binDir, "python", strings.Replace(videoStub, "{{step}}", builder.videoStep, 1))
	cfgVal.Video.Workdir = base
	return builder.cfg
}

const speechStub = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -f) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'RIFF0000WAVE' > "$out"`

const videoStub = `out=""
idle=0
while [ $# -gt 0 ]; do
  case "$1" in
    --result_dir) out="$2"; shift 2 ;;
    --use_idle_mode) idle=1; shift ;;
    *) shift ;;
  esac
done
{{step}}
mkdir -p "$out/2026_01_01_00.00.00"
printf 'ftypmp42' > "$out/2026_01_01_00.00.00/avatar##speech.mp4"`

// WithVideoStep injects shell lines into the video stub after argument
// parsing. $out is the result dir and $idle is 1 for idle clips.
func WithVideoStep(lines string) ConfigOption {
	return func(b *configBuilder) {
		b.videoStep = lines
	}
}

// WithPostgres switches the config to the postgres driver.
func WithPostgres(dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Database.Driver = config.DriverPostgres
		b.cfg.Database.DSN = dsn
	}
}

// WithAPIToken sets the bearer token required by the API server.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, piper is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"piper"}
		}
		binDir := filepath.Join(b.baseDir, "path-bin")
		for _, name := range names {
			WriteStubTool(b.t, binDir, name, "exit 0")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ResultsDir)
}
