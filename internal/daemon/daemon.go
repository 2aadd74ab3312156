package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"afterlive/internal/api"
	"afterlive/internal/config"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/preflight"
	"afterlive/internal/telemetry"
	"afterlive/internal/tracker"
	"afterlive/internal/uploadqueue"
	"afterlive/internal/workflow"
)

// Workflow is the event and drain coordinator the daemon runs.
type Workflow interface {
	Start(ctx context.Context) error
	Stop()
	Submit(event live.Event) error
	TriggerDrain() error
	DrainRunning() bool
	Status(ctx context.Context) workflow.StatusSummary
}

// QueueReader exposes the upload queue for inspection.
type QueueReader interface {
	List(ctx context.Context) ([]uploadqueue.Entry, error)
	Stuck(ctx context.Context, minAttempts int) ([]uploadqueue.Entry, error)
}

// PendingSessions reports rooms that have tracked state.
type PendingSessions interface {
	Pending(ctx context.Context) ([]tracker.RoomState, error)
}

// CatalogWatcher reloads the category catalog until ctx ends.
type CatalogWatcher interface {
	Watch(ctx context.Context) error
}

// Components are the collaborators the daemon starts and serves. Catalog,
// Sessions and Metrics may be nil.
type Components struct {
	Workflow Workflow
	Queue    QueueReader
	Sessions PendingSessions
	Catalog  CatalogWatcher
	Metrics  *telemetry.Metrics
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	c      Components
	logger *slog.Logger
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Pending      []tracker.RoomState
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon. Nothing runs until Start.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c.Workflow == nil || c.Queue == nil {
		return nil, errors.New("daemon requires config, workflow and upload queue")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		c:        c,
		logger:   logger,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then starts the workflow, the catalog
// watcher and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another afterlive daemon is already running (lock %s)", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.c.Workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.c.Workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if d.c.Catalog != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.c.Catalog.Watch(runCtx); err != nil {
				logging.WarnWithContext(d.logger, "category catalog watcher stopped", "catalog_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check upload.catalog_file and its directory"),
					logging.String(logging.FieldImpact, "catalog edits need a daemon restart"),
				)
			}
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("afterlive daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop shuts the API down, stops the workflow and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.c.Workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("afterlive daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Addr returns the API listener address once started.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.c.Workflow.Status(ctx),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
	if d.c.Sessions != nil {
		pending, err := d.c.Sessions.Pending(ctx)
		if err != nil {
			d.logger.Warn("failed to read pending sessions", logging.Error(err))
		}
		status.Pending = pending
	}
	return status
}

func (d *Daemon) statusPayload(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	return api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Pending:      api.FromRoomStates(status.Pending),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(ctx, d.cfg)),
	}
}
