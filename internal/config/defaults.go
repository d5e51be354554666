package config

const (
	defaultStagingDir      = "~/.local/share/callaudit/staging"
	defaultMediaDir        = "~/.local/share/callaudit/media"
	defaultLogDir          = "~/.local/share/callaudit/logs"
	defaultAPIBind         = "127.0.0.1:7519"
	defaultLogFormat       = ""
	defaultLogLevel        = "info"
	defaultWorkers         = 4
	defaultQueuePoll       = 5
	defaultErrorRetry      = 10
	defaultReapInterval    = 30
	defaultStageRetries    = 1
	defaultResourceProfile = "cpu"
	defaultMaxRunMinutes   = 240
	defaultSampleRate      = 16000
	defaultChannels        = 1
	defaultAudioCodec      = "pcm_s16le"
	defaultInferTimeout    = 60
	defaultLLMTimeout      = 300
	defaultTemplateDir     = "~/.config/callaudit/templates"
	defaultTemplate        = "default"
	defaultNtfyTimeout     = 10
	defaultNotifyRate      = 0.5
	defaultNotifyBurst     = 5
)

// defaultStageTimeouts holds per-profile stage time limits in seconds. The
// cpu profile carries longer transcription and scoring limits because
// inference is slower without a GPU.
var defaultStageTimeouts = map[string]map[string]int{
	"cpu": {
		"normalize":  300,
		"vad":        900,
		"overlap":    900,
		"diarize":    2700,
		"transcribe": 5400,
		"emotion":    1200,
		"score":      3600,
	},
	"gpu": {
		"normalize":  300,
		"vad":        300,
		"overlap":    300,
		"diarize":    900,
		"transcribe": 1200,
		"emotion":    600,
		"score":      900,
	},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			MediaDir:   defaultMediaDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Pipeline: Pipeline{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePoll,
			ErrorRetryInterval: defaultErrorRetry,
			ReapInterval:       defaultReapInterval,
			StageRetries:       defaultStageRetries,
			ResourceProfile:    defaultResourceProfile,
			MaxRunMinutes:      defaultMaxRunMinutes,
		},
		Audio: Audio{
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
			Codec:      defaultAudioCodec,
		},
		Inference: Inference{
			RequestTimeout: defaultInferTimeout,
		},
		LLM: LLM{
			TimeoutSeconds: defaultLLMTimeout,
		},
		Scoring: Scoring{
			TemplateDir:     defaultTemplateDir,
			DefaultTemplate: defaultTemplate,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNtfyTimeout,
			StageTransitions: false,
			Completion:       true,
			Errors:           true,
			RatePerSecond:    defaultNotifyRate,
			Burst:            defaultNotifyBurst,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// StageTimeoutSeconds resolves the time limit for a stage under the
// configured resource profile, falling back to built-in defaults.
func (c *Config) StageTimeoutSeconds(stage string) int {
	profile := c.Pipeline.ResourceProfile
	if profiles := c.Pipeline.StageTimeouts; profiles != nil {
		if limits, ok := profiles[profile]; ok {
			if secs, ok := limits[stage]; ok && secs > 0 {
				return secs
			}
		}
	}
	if limits, ok := defaultStageTimeouts[profile]; ok {
		if secs, ok := limits[stage]; ok {
			return secs
		}
	}
	return defaultStageTimeouts[defaultResourceProfile][stage]
}
