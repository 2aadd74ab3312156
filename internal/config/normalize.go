package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeTools()
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeTelemetry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.RecorderDir, err = expandPath(strings.TrimSpace(c.Paths.RecorderDir)); err != nil {
		return fmt.Errorf("paths.recorder_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("AFTERLIVE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	c.Processing.VideoExtension = normalizeExtension(c.Processing.VideoExtension)
	if c.Processing.VideoExtension == "" {
		c.Processing.VideoExtension = defaultVideoExtension
	}
	c.Processing.ChatLogExtension = normalizeExtension(c.Processing.ChatLogExtension)
	if c.Processing.ChatLogExtension == "" {
		c.Processing.ChatLogExtension = defaultChatLogExtension
	}
	exts := make([]string, 0, len(c.Processing.Extensions)+2)
	seen := make(map[string]struct{}, len(c.Processing.Extensions)+2)
	add := func(ext string) {
		ext = normalizeExtension(ext)
		if ext == "" {
			return
		}
		if _, ok := seen[ext]; ok {
			return
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	add(c.Processing.VideoExtension)
	add(c.Processing.ChatLogExtension)
	for _, ext := range c.Processing.Extensions {
		add(ext)
	}
	c.Processing.Extensions = exts
	if c.Processing.MinDurationSeconds < 0 {
		c.Processing.MinDurationSeconds = 0
	}
	if c.Processing.MinFreeGiB < 0 {
		c.Processing.MinFreeGiB = 0
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	c.Tools.DanmakuFactory = strings.TrimSpace(c.Tools.DanmakuFactory)
	if c.Tools.DanmakuArgs == nil {
		c.Tools.DanmakuArgs = append([]string(nil), defaultDanmakuArgs...)
	}
}

func (c *Config) normalizeUpload() error {
	var err error
	c.Upload.Schedule = strings.TrimSpace(c.Upload.Schedule)
	if c.Upload.Schedule == "" {
		c.Upload.Schedule = defaultUploadSchedule
	}
	c.Upload.Privacy = strings.ToLower(strings.TrimSpace(c.Upload.Privacy))
	if c.Upload.Privacy == "" {
		c.Upload.Privacy = defaultUploadPrivacy
	}
	if strings.TrimSpace(c.Upload.CredentialFile) == "" {
		c.Upload.CredentialFile = defaultCredentialFile
	}
	if c.Upload.CredentialFile, err = expandPath(c.Upload.CredentialFile); err != nil {
		return fmt.Errorf("upload.credential_file: %w", err)
	}
	if strings.TrimSpace(c.Upload.CatalogFile) == "" {
		c.Upload.CatalogFile = defaultCatalogFile
	}
	if c.Upload.CatalogFile, err = expandPath(c.Upload.CatalogFile); err != nil {
		return fmt.Errorf("upload.catalog_file: %w", err)
	}
	c.Upload.ClientID = strings.TrimSpace(c.Upload.ClientID)
	if c.Upload.ClientID == "" {
		if value, ok := os.LookupEnv("YOUTUBE_CLIENT_ID"); ok {
			c.Upload.ClientID = strings.TrimSpace(value)
		}
	}
	c.Upload.ClientSecret = strings.TrimSpace(c.Upload.ClientSecret)
	if c.Upload.ClientSecret == "" {
		if value, ok := os.LookupEnv("YOUTUBE_CLIENT_SECRET"); ok {
			c.Upload.ClientSecret = strings.TrimSpace(value)
		}
	}
	c.Upload.RedirectURL = strings.TrimSpace(c.Upload.RedirectURL)
	if c.Upload.RedirectURL == "" {
		c.Upload.RedirectURL = defaultUploadRedirectURL
	}
	c.Upload.SourceURL = strings.TrimSpace(c.Upload.SourceURL)
	if c.Upload.RequestTimeoutSeconds <= 0 {
		c.Upload.RequestTimeoutSeconds = defaultUploadTimeout
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	hooks := make([]string, 0, len(c.Notifications.Webhooks))
	for _, hook := range c.Notifications.Webhooks {
		if trimmed := strings.TrimSpace(hook); trimmed != "" {
			hooks = append(hooks, trimmed)
		}
	}
	c.Notifications.Webhooks = hooks
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultWebhookTimeout
	}
	if c.Notifications.Attempts <= 0 {
		c.Notifications.Attempts = defaultWebhookAttempts
	}
	if c.Notifications.RetryDelayMS < 0 {
		c.Notifications.RetryDelayMS = 0
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("AFTERLIVE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.StuckAfterAttempts <= 0 {
		c.Notifications.StuckAfterAttempts = defaultStuckAfterAttempts
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	if c.Telemetry.OTLPEndpoint == "" {
		if value, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.Telemetry.OTLPEndpoint = strings.TrimSpace(value)
		}
	}
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
