package config

const (
	defaultConfigPath          = "~/.config/afterlive/config.toml"
	defaultRecorderDir         = "~/recordings"
	defaultWorkDir             = "~/.local/share/afterlive/work"
	defaultStateDir            = "~/.local/share/afterlive/state"
	defaultLogDir              = "~/.local/share/afterlive/logs"
	defaultAPIBind             = "127.0.0.1:8866"
	defaultWorkers             = 2
	defaultVideoExtension      = "flv"
	defaultChatLogExtension    = "xml"
	defaultToolTimeoutSeconds  = 7200
	defaultFFmpeg              = "ffmpeg"
	defaultFFprobe             = "ffprobe"
	defaultDanmakuFactory      = "DanmakuFactory"
	defaultUploadSchedule      = "06:00"
	defaultUploadPrivacy       = "private"
	defaultUploadRedirectURL   = "urn:ietf:wg:oauth:2.0:oob"
	defaultSourceURL           = "https://live.bilibili.com/${room}"
	defaultUploadTimeout       = 600
	defaultCatalogFile         = "~/.config/afterlive/catalog.yaml"
	defaultCredentialFile      = "~/.config/afterlive/youtube_token.json"
	defaultWebhookTimeout      = 100
	defaultWebhookAttempts     = 3
	defaultWebhookRetryDelayMS = 500
	defaultStuckAfterAttempts  = 5
	defaultServiceName         = "afterlive"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultTitleTemplate       = "${title}"
)

var defaultDanmakuArgs = []string{"-d", "50", "-S", "55", "--ignore-warnings"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecorderDir: defaultRecorderDir,
			WorkDir:     defaultWorkDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Processing: Processing{
			DeleteAfterUpload:  true,
			AutoUpload:         true,
			Workers:            defaultWorkers,
			Extensions:         []string{defaultVideoExtension, defaultChatLogExtension},
			VideoExtension:     defaultVideoExtension,
			ChatLogExtension:   defaultChatLogExtension,
			ToolTimeoutSeconds: defaultToolTimeoutSeconds,
		},
		Tools: Tools{
			FFmpeg:         defaultFFmpeg,
			FFprobe:        defaultFFprobe,
			DanmakuFactory: defaultDanmakuFactory,
			DanmakuArgs:    append([]string(nil), defaultDanmakuArgs...),
		},
		Upload: Upload{
			Workers:               defaultWorkers,
			Schedule:              defaultUploadSchedule,
			RunOnStart:            true,
			CredentialFile:        defaultCredentialFile,
			RedirectURL:           defaultUploadRedirectURL,
			Privacy:               defaultUploadPrivacy,
			CatalogFile:           defaultCatalogFile,
			SourceURL:             defaultSourceURL,
			RequestTimeoutSeconds: defaultUploadTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultWebhookTimeout,
			Attempts:           defaultWebhookAttempts,
			RetryDelayMS:       defaultWebhookRetryDelayMS,
			StuckAfterAttempts: defaultStuckAfterAttempts,
		},
		Telemetry: Telemetry{
			Metrics:     true,
			ServiceName: defaultServiceName,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
