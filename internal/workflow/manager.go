package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"afterlive/internal/config"
	"afterlive/internal/decision"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/notifications"
	"afterlive/internal/pipeline"
	"afterlive/internal/telemetry"
	"afterlive/internal/uploadqueue"
)

// ErrNotRunning is returned by Submit when the manager is stopped.
var ErrNotRunning = errors.New("workflow not running")

// ErrUploadDisabled is returned by TriggerDrain when uploading is off.
var ErrUploadDisabled = errors.New("uploading is disabled")

// SessionTracker is the subset of the tracker the manager drives.
type SessionTracker interface {
	RecordSessionStart(ctx context.Context, roomID int64, start time.Time) error
	RecordFileOpened(ctx context.Context, roomID int64, relativePath string) (string, error)
	DrainSessionFiles(ctx context.Context, roomID int64) ([]string, error)
	Restore(ctx context.Context, roomID int64, stems []string) error
	Hydrate(ctx context.Context, roomID int64) (time.Time, error)
}

// Decider judges a finished session.
type Decider interface {
	ShouldProcess(ctx context.Context, session live.Session, originStems []string, rule *config.Room) (decision.Decision, error)
}

// Processor runs the processing pipeline for a session.
type Processor interface {
	Run(ctx context.Context, session live.Session, originStems []string) (*pipeline.Job, error)
}

// Queue receives finished jobs for upload.
type Queue interface {
	Enqueue(ctx context.Context, item uploadqueue.Item) (int64, error)
	Count(ctx context.Context) (int, error)
}

// Drainer empties the upload queue into the platform.
type Drainer interface {
	DrainAndDispatch(ctx context.Context) (uploadqueue.Report, error)
	Running() bool
}

// Listeners delivers ProcessFinished documents to webhook listeners.
type Listeners interface {
	Notify(ctx context.Context, listeners []string, doc notifications.ProcessFinished)
}

// Deps bundles the collaborators the manager coordinates. Queue, Uploads,
// Webhooks, Notifier and Metrics may be nil.
type Deps struct {
	Tracker  SessionTracker
	Decider  Decider
	Pipeline Processor
	Queue    Queue
	Uploads  Drainer
	Webhooks Listeners
	Notifier notifications.Service
	Metrics  *telemetry.Metrics
}

// lane is the ordered event backlog of one room.
type lane struct {
	room    int64
	pending []live.Event
}

// Manager routes recorder events through session handling and schedules
// upload drains.
type Manager struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	pool   *semaphore.Weighted
	now    func() time.Time

	drainRequests chan struct{}

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lanes     map[int64]*lane
	pipelines int
	processed int
	failed    int
	lastErr   error
	nextDrain time.Time
}

// NewManager constructs a manager. It does nothing until Start.
func NewManager(cfg *config.Config, deps Deps, logger *slog.Logger) *Manager {
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	workers := cfg.Processing.Workers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:           cfg,
		deps:          deps,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		pool:          semaphore.NewWeighted(int64(workers)),
		now:           time.Now,
		drainRequests: make(chan struct{}, 1),
		lanes:         make(map[int64]*lane),
	}
}

// Start begins accepting events and, when uploading is enabled, runs the
// upload scheduler.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	var hour, minute int
	scheduled := m.uploadsEnabled()
	if scheduled {
		var err error
		hour, minute, err = m.cfg.ScheduleClock()
		if err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true

	if scheduled {
		m.wg.Add(1)
		go m.runScheduler(runCtx, hour, minute)
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("workers", m.cfg.Processing.Workers),
		logging.Bool("uploads", scheduled),
	)
	return nil
}

// Stop cancels in-flight work and waits for every lane, pipeline and the
// scheduler to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Submit queues event on its room's lane and returns immediately. Event
// types the daemon does not act on are counted and dropped.
func (m *Manager) Submit(event live.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}
	m.deps.Metrics.EventReceived(string(event.Type))
	if !event.Type.Handled() {
		m.logger.Debug("ignoring recorder event",
			logging.String("recorder_event", string(event.Type)),
			logging.Int64(logging.FieldRoomID, event.Data.RoomID),
		)
		return nil
	}

	room := event.Data.RoomID
	l, ok := m.lanes[room]
	if !ok {
		l = &lane{room: room}
		m.lanes[room] = l
		m.wg.Add(1)
		go m.runLane(m.ctx, l)
	}
	l.pending = append(l.pending, event)
	return nil
}

// runLane handles the lane's events in order and retires the lane once its
// backlog is empty. Submit and retirement share m.mu, so an event is never
// left on a retired lane.
func (m *Manager) runLane(ctx context.Context, l *lane) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(l.pending) == 0 || ctx.Err() != nil {
			dropped := len(l.pending)
			delete(m.lanes, l.room)
			m.mu.Unlock()
			if dropped > 0 {
				logging.WarnWithContext(m.logger, "dropping queued events on shutdown", "events_dropped",
					logging.Int64(logging.FieldRoomID, l.room),
					logging.Int("count", dropped),
					logging.String(logging.FieldImpact, "the recorder state for this room may be incomplete"),
				)
			}
			return
		}
		event := l.pending[0]
		l.pending = l.pending[1:]
		m.mu.Unlock()

		m.handle(ctx, event)
	}
}

func (m *Manager) uploadsEnabled() bool {
	return m.cfg.Upload.Enabled && m.deps.Uploads != nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
