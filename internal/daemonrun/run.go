package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"afterlive/internal/channel"
	"afterlive/internal/config"
	"afterlive/internal/daemon"
	"afterlive/internal/decision"
	"afterlive/internal/logging"
	"afterlive/internal/media/ffprobe"
	"afterlive/internal/notifications"
	"afterlive/internal/pipeline"
	"afterlive/internal/preflight"
	"afterlive/internal/state"
	"afterlive/internal/telemetry"
	"afterlive/internal/tracker"
	"afterlive/internal/upload"
	"afterlive/internal/uploadqueue"
	"afterlive/internal/workflow"
)

// keepRunLogs is how many previous run logs survive retention regardless of age.
const keepRunLogs = 3

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the afterlive daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("afterlive-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "afterlive-*.log", Exclude: []string{logPath}, Keep: keepRunLogs},
	)
	for _, failed := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run `afterlive status` for a full report"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "afterlive.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	shutdownTracing, err := telemetry.InitTracing(signalCtx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, opts.Version, logger)
	if err != nil {
		logging.WarnWithContext(logger, "tracing unavailable", "tracing_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check telemetry.otlp_endpoint"),
		)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(flushCtx)
		}()
	}
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics {
		metrics = telemetry.NewMetrics()
	}

	stateStore, err := state.NewFileStore(cfg.Paths.StateDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	queueStore, err := uploadqueue.Open(cfg)
	if err != nil {
		logger.Error("open upload queue", logging.Error(err))
		return err
	}
	defer queueStore.Close()

	resolver, err := channel.NewResolver(cfg.Upload.CatalogFile, logger)
	if err != nil {
		return fmt.Errorf("load category catalog: %w", err)
	}

	notifier := notifications.NewService(cfg)
	sessions := tracker.New(cfg, stateStore, logger)
	probe := ffprobe.Prober{Binary: cfg.FFprobeBinary(), Timeout: time.Minute}
	uploader := upload.NewUploader(cfg, upload.NewYouTubeClient(cfg, logger), resolver, logger)
	dispatcher := uploadqueue.NewDispatcher(cfg, queueStore, uploader, notifier, metrics, logger)

	manager := workflow.NewManager(cfg, workflow.Deps{
		Tracker:  sessions,
		Decider:  decision.New(cfg, probe, logger),
		Pipeline: pipeline.New(cfg, logger, metrics),
		Queue:    queueStore,
		Uploads:  dispatcher,
		Webhooks: notifications.NewDispatcher(cfg, metrics, logger),
		Notifier: notifier,
		Metrics:  metrics,
	}, logger)

	components := daemon.Components{
		Workflow: manager,
		Queue:    queueStore,
		Sessions: sessions,
		Metrics:  metrics,
	}
	if strings.TrimSpace(cfg.Upload.CatalogFile) != "" {
		components.Catalog = resolver
	}
	d, err := daemon.New(cfg, components, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	logPending(signalCtx, logger, sessions)
	<-signalCtx.Done()
	logger.Info("afterlive daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logPending reports sessions that were open when the previous daemon exited.
func logPending(ctx context.Context, logger *slog.Logger, sessions *tracker.Tracker) {
	pending, err := sessions.Pending(ctx)
	if err != nil {
		logger.Warn("failed to read pending sessions", logging.Error(err))
		return
	}
	for _, rs := range pending {
		logger.Info("resuming tracked session",
			logging.String(logging.FieldEventType, "session_resumed"),
			logging.Int64(logging.FieldRoomID, rs.RoomID),
			logging.Int("pending_files", len(rs.Pending)),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.FFmpegBinary())),
		logging.String("ffmpeg_binary", cfg.FFmpegBinary()),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.FFprobeBinary())),
		logging.String("ffprobe_binary", cfg.FFprobeBinary()),
		logging.Bool("danmaku_factory_available", binaryAvailable(cfg.DanmakuFactoryBinary())),
		logging.Bool("upload_enabled", cfg.Upload.Enabled),
		logging.Bool("upload_credentials_present", fileExists(cfg.Upload.CredentialFile)),
		logging.Int("rooms", len(cfg.Rooms)),
		logging.Int("webhooks", len(cfg.Notifications.Webhooks)),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
