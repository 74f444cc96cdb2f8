package config

const (
	defaultConfigPath           = "~/.config/avatarforge/config.toml"
	defaultResultsDir           = "~/.local/share/avatarforge/results"
	defaultAvatarDir            = "~/.local/share/avatarforge/icons"
	defaultStateDir             = "~/.local/share/avatarforge/state"
	defaultLogDir               = "~/.local/share/avatarforge/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultDriver               = DriverSQLite
	defaultMaxConns             = 4
	defaultDialTimeoutSeconds   = 10
	defaultAdvisoryLockKey      = 0x61766174 // "avat"
	defaultPiperBinary          = "piper"
	defaultVoiceMale            = "~/.local/share/avatarforge/voices/pt_PT-tugao-medium.onnx"
	defaultVoiceFemale          = "~/.local/share/avatarforge/voices/dii_pt-PT.onnx"
	defaultPython               = "python3"
	defaultVideoModule          = "src.inference"
	defaultVideoSize            = 256
	defaultBatchSize            = 1
	defaultPreprocess           = PreprocessCrop
	defaultIdleSeconds          = 5
	defaultPollIntervalMS       = 200
	defaultCancelPollIntervalMS = 1000
	defaultGreetingTemplate     = "Olá! Eu sou o %s. Em que posso ajudar?"
	defaultStaleWorkspaceHours  = 24
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	PreprocessCrop    = "crop"
	PreprocessFull    = "full"
	PreprocessExtFull = "extfull"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ResultsDir: defaultResultsDir,
			AvatarDir:  defaultAvatarDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Database: Database{
			Driver:             defaultDriver,
			MaxConns:           defaultMaxConns,
			DialTimeoutSeconds: defaultDialTimeoutSeconds,
			AdvisoryLockKey:    defaultAdvisoryLockKey,
		},
		Speech: Speech{
			Binary:       defaultPiperBinary,
			VoiceMale:    defaultVoiceMale,
			VoiceFemale:  defaultVoiceFemale,
			VoiceDefault: defaultVoiceFemale,
		},
		Video: Video{
			Python:      defaultPython,
			Module:      defaultVideoModule,
			Size:        defaultVideoSize,
			BatchSize:   defaultBatchSize,
			Preprocess:  defaultPreprocess,
			IdleSeconds: defaultIdleSeconds,
		},
		Job: Job{
			PollIntervalMS:       defaultPollIntervalMS,
			CancelPollIntervalMS: defaultCancelPollIntervalMS,
			GreetingTemplate:     defaultGreetingTemplate,
			StaleWorkspaceHours:  defaultStaleWorkspaceHours,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completed:      true,
			Failed:         true,
			Cancelled:      true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
