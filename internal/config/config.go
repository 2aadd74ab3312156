package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RecorderDir string `toml:"recorder_dir"`
	WorkDir     string `toml:"work_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Processing controls how finished sessions are turned into output videos.
type Processing struct {
	Multipart          bool     `toml:"multipart"`
	DeleteAfterUpload  bool     `toml:"delete_after_upload"`
	AutoUpload         bool     `toml:"auto_upload"`
	MinDurationSeconds int      `toml:"min_duration_seconds"`
	Workers            int      `toml:"workers"`
	Extensions         []string `toml:"extensions"`
	VideoExtension     string   `toml:"video_extension"`
	ChatLogExtension   string   `toml:"chatlog_extension"`
	ToolTimeoutSeconds int      `toml:"tool_timeout_seconds"`
	MinFreeGiB         int      `toml:"min_free_gib"`
}

// Tools names the external executables.
type Tools struct {
	FFmpeg         string   `toml:"ffmpeg"`
	FFprobe        string   `toml:"ffprobe"`
	DanmakuFactory string   `toml:"danmaku_factory"`
	DanmakuArgs    []string `toml:"danmaku_args"`
}

// Upload contains the upload queue and platform client settings.
type Upload struct {
	Enabled               bool   `toml:"enabled"`
	Workers               int    `toml:"workers"`
	Schedule              string `toml:"schedule"`
	RunOnStart            bool   `toml:"run_on_start"`
	CredentialFile        string `toml:"credential_file"`
	ClientID              string `toml:"client_id"`
	ClientSecret          string `toml:"client_secret"`
	RedirectURL           string `toml:"redirect_url"`
	Privacy               string `toml:"privacy"`
	CatalogFile           string `toml:"catalog_file"`
	SourceURL             string `toml:"source_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Notifications contains listener webhooks and ntfy operator alerts.
type Notifications struct {
	Webhooks           []string `toml:"webhooks"`
	RequestTimeout     int      `toml:"request_timeout"`
	Attempts           int      `toml:"attempts"`
	RetryDelayMS       int      `toml:"retry_delay_ms"`
	NtfyTopic          string   `toml:"ntfy_topic"`
	StuckAfterAttempts int      `toml:"stuck_after_attempts"`
}

// Telemetry contains metrics and tracing settings.
type Telemetry struct {
	Metrics      bool   `toml:"metrics"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for afterlive.
//
// Configuration sections by subsystem:
//   - Paths: recorder root, working, state and log directories, API bind address
//   - Processing: merge, deletion and duration policy plus the pipeline pool size
//   - Tools: ffmpeg, ffprobe and DanmakuFactory executables
//   - Upload: queue schedule and platform credentials
//   - Notifications: listener webhooks and ntfy alerts
//   - Telemetry: prometheus metrics and OTLP tracing
//   - Logging: log format, level, and retention
//   - Rooms: per-room rules and conditions
type Config struct {
	Paths         Paths         `toml:"paths"`
	Processing    Processing    `toml:"processing"`
	Tools         Tools         `toml:"tools"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Logging       Logging       `toml:"logging"`
	Rooms         []Room        `toml:"rooms"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the config at path, or the first existing default location
// when path is empty, then applies defaults, environment overrides and
// validation. It returns the resolved file path and whether the file existed;
// a missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	// A missing .env file is the common case.
	_ = godotenv.Load()

	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// locate resolves an explicit path as given. Otherwise it tries the user
// config location and then ./afterlive.toml, reporting the user location
// as missing when neither exists.
func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	candidates := make([]string, 0, 2)
	for _, raw := range []string{defaultConfigPath, "afterlive.toml"} {
		expanded, err := expandPath(raw)
		if err != nil {
			return "", false, err
		}
		candidates = append(candidates, expanded)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return candidates[0], false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The recorder directory belongs to the recorder and is never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the upload queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "upload_queue.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "afterlive.lock")
}

// ToolTimeout bounds each external tool invocation.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Processing.ToolTimeoutSeconds) * time.Second
}

// MinDuration is the minimum total recording length worth processing.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.Processing.MinDurationSeconds) * time.Second
}

// WebhookTimeout bounds each listener delivery attempt.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// WebhookRetryDelay is the pause between listener delivery attempts.
func (c *Config) WebhookRetryDelay() time.Duration {
	return time.Duration(c.Notifications.RetryDelayMS) * time.Millisecond
}

// UploadTimeout bounds each platform request.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.RequestTimeoutSeconds) * time.Second
}

// ScheduleClock returns the daily upload drain time.
func (c *Config) ScheduleClock() (hour, minute int, err error) {
	return parseClock(c.Upload.Schedule)
}

// FFprobeBinary returns the ffprobe executable name used for duration probes.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFprobe); bin != "" {
		return bin
	}
	return defaultFFprobe
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFmpeg); bin != "" {
		return bin
	}
	return defaultFFmpeg
}

// DanmakuFactoryBinary returns the subtitle compiler executable name.
func (c *Config) DanmakuFactoryBinary() string {
	if bin := strings.TrimSpace(c.Tools.DanmakuFactory); bin != "" {
		return bin
	}
	return defaultDanmakuFactory
}

// expandPath resolves "~" and "~/..." against the home directory and
// returns an absolute, cleaned path. Empty input stays empty.
func expandPath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if raw == "~" || strings.HasPrefix(raw, "~/") || strings.HasPrefix(raw, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		raw = filepath.Join(home, raw[1:])
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", raw, err)
	}
	return abs, nil
}

// ExpandPath applies the config file's path rules to a command-line path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the annotated sample configuration to path, creating
// its directory.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
