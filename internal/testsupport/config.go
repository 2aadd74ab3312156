package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"afterlive/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a validated config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecorderDir = filepath.Join(base, "recordings")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Upload.CatalogFile = filepath.Join(base, "catalog.yaml")
	cfgVal.Upload.CredentialFile = filepath.Join(base, "youtube_token.json")
	cfgVal.Upload.RunOnStart = false
	cfgVal.Processing.AutoUpload = false
	cfgVal.Processing.ToolTimeoutSeconds = 30
	cfgVal.Notifications.RetryDelayMS = 1
	cfgVal.Notifications.RequestTimeout = 5
	cfgVal.Telemetry.Metrics = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.RecorderDir, 0o755); err != nil {
		t.Fatalf("mkdir recorder dir: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRooms replaces the configured room rules.
func WithRooms(rooms ...config.Room) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rooms = rooms
	}
}

// WithMultipart toggles multipart uploads.
func WithMultipart(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.Multipart = enabled
	}
}

// WithMinDuration sets the minimum total recording length in seconds.
func WithMinDuration(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.MinDurationSeconds = seconds
	}
}

// WithWebhooks sets the listener URLs.
func WithWebhooks(urls ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.Webhooks = urls
	}
}

// WithUploadEnabled enables uploading with placeholder client credentials.
func WithUploadEnabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Enabled = true
		b.cfg.Upload.ClientID = "test-client"
		b.cfg.Upload.ClientSecret = "test-secret"
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and DanmakuFactory
// are stubbed with scripts that create the output file named on their command line.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			WithStubScript("ffmpeg", FFmpegStub)(b)
			WithStubScript("ffprobe", FFprobeStub)(b)
			WithStubScript("DanmakuFactory", DanmakuFactoryStub)(b)
			return
		}
		for _, name := range names {
			WithStubScript(name, "exit 0\n")(b)
		}
	}
}

// WithStubScript writes a /bin/sh script named name into the stub bin
// directory and prepends the directory to PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}
		prependPath(b.t, binDir)
	}
}

func prependPath(t testing.TB, dir string) {
	oldPath := os.Getenv("PATH")
	if parts := filepath.SplitList(oldPath); len(parts) > 0 && parts[0] == dir {
		return
	}
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
