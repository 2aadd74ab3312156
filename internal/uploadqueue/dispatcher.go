package uploadqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"afterlive/internal/config"
	"afterlive/internal/fileutil"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/telemetry"
)

// ErrDrainInProgress is returned when a drain is requested while one is running.
var ErrDrainInProgress = errors.New("upload drain already in progress")

// Uploader publishes one queued item and returns the platform id. Parts
// already in parts are skipped; newly published ones are recorded there.
type Uploader interface {
	Upload(ctx context.Context, item Item, parts PartLog) (string, error)
}

// PartLog remembers which video files of an item already reached the platform.
type PartLog interface {
	Published(path string) (videoID string, ok bool)
	Record(ctx context.Context, path, videoID string) error
}

type entryParts struct {
	store *Store
	entry *Entry
}

func (p entryParts) Published(path string) (string, bool) {
	id, ok := p.entry.Parts[path]
	return id, ok
}

func (p entryParts) Record(ctx context.Context, path, videoID string) error {
	return p.store.RecordPart(context.WithoutCancel(ctx), p.entry, path, videoID)
}

// Alerts receives operator notifications about drain outcomes.
type Alerts interface {
	NotifyUploadCompleted(ctx context.Context, title, videoID string) error
	NotifyStuckItems(ctx context.Context, count, threshold int) error
}

// Report summarizes one drain.
type Report struct {
	Uploaded []int64
	Requeued []int64
	// Lost lists entries that failed and could not be re-inserted. They stay
	// leased and are handed out again after a restart.
	Lost     []int64
	VideoIDs map[int64]string
	Stuck    int
	Duration time.Duration
}

// Dispatcher drains the queue into an Uploader.
type Dispatcher struct {
	cfg      *config.Config
	store    *Store
	uploader Uploader
	alerts   Alerts
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	running  atomic.Bool
}

// NewDispatcher wires a dispatcher. alerts and metrics may be nil.
func NewDispatcher(cfg *config.Config, store *Store, uploader Uploader, alerts Alerts, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		uploader: uploader,
		alerts:   alerts,
		metrics:  metrics,
		logger:   logging.NewComponentLogger(logger, "uploadqueue"),
	}
}

// Running reports whether a drain is in progress.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// DrainAndDispatch leases a snapshot of the queue and uploads every entry
// with at most upload.workers in flight. Uploaded entries are removed and
// failed ones are re-inserted unchanged.
func (d *Dispatcher) DrainAndDispatch(ctx context.Context) (Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Report{}, ErrDrainInProgress
	}
	defer d.running.Store(false)

	start := time.Now()
	report := Report{VideoIDs: make(map[int64]string)}
	entries, err := d.store.Drain(ctx)
	if err != nil {
		return report, err
	}
	if len(entries) == 0 {
		d.logger.Debug("upload queue empty")
		d.refreshDepth(ctx)
		return report, nil
	}
	d.logger.Info("upload drain started", logging.Int("items", len(entries)))

	workers := d.cfg.Upload.Workers
	if workers < 1 {
		workers = 1
	}
	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(workers)
	for _, entry := range entries {
		group.Go(func() error {
			videoID, requeued, err := d.dispatch(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Uploaded = append(report.Uploaded, entry.ID)
				report.VideoIDs[entry.ID] = videoID
			case requeued:
				report.Requeued = append(report.Requeued, entry.ID)
			default:
				report.Lost = append(report.Lost, entry.ID)
			}
			return nil
		})
	}
	_ = group.Wait()

	report.Duration = time.Since(start)
	d.refreshDepth(ctx)
	d.reportStuck(ctx, &report)

	d.logger.Info("upload drain finished",
		logging.Int("uploaded", len(report.Uploaded)),
		logging.Int("requeued", len(report.Requeued)),
		logging.Int("lost", len(report.Lost)),
		logging.Int("stuck", report.Stuck),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

// dispatch uploads one entry. On failure the entry is re-inserted even if ctx
// has been cancelled, so shutdown never drops queued work.
func (d *Dispatcher) dispatch(ctx context.Context, entry Entry) (string, bool, error) {
	ctx = services.WithRoomID(ctx, entry.Item.Session.RoomID)
	ctx = services.WithSessionID(ctx, entry.Item.Session.SessionID)
	logger := logging.WithContext(ctx, d.logger).With(logging.Int64(logging.FieldItemID, entry.ID))

	start := time.Now()
	videoID, err := d.uploader.Upload(ctx, entry.Item, entryParts{store: d.store, entry: &entry})
	elapsed := time.Since(start)
	if err == nil {
		if doneErr := d.store.Complete(context.WithoutCancel(ctx), entry.ID); doneErr != nil {
			logging.WarnWithContext(logger, "uploaded item could not be removed from the queue", "upload_complete_failed",
				logging.Error(doneErr),
				logging.String(logging.FieldImpact, "the item is handed out again after a restart; its published parts are skipped"),
			)
		}
		d.metrics.UploadAttempt("success", elapsed)
		logger.Info("upload succeeded",
			logging.String(logging.FieldEventType, "upload_completed"),
			logging.String("video_id", videoID),
			logging.Int("attempts", entry.Attempts+1),
			logging.Duration("duration", elapsed),
		)
		d.cleanup(logger, entry.Item)
		if d.alerts != nil {
			if alertErr := d.alerts.NotifyUploadCompleted(ctx, entry.Item.Session.LiveTitle, videoID); alertErr != nil {
				logger.Debug("upload notification failed", logging.Error(alertErr))
			}
		}
		return videoID, false, nil
	}

	d.metrics.UploadAttempt(services.Kind(err), elapsed)
	newID, requeueErr := d.store.Requeue(context.WithoutCancel(ctx), entry, err)
	if requeueErr != nil {
		logging.ErrorWithContext(logger, "upload failed and could not be re-queued", "upload_requeue_failed",
			logging.Error(err),
			logging.String("requeue_error", requeueErr.Error()),
			logging.Strings("video_paths", entry.Item.VideoPaths),
			logging.String(logging.FieldImpact, "the item stays leased until the daemon restarts"),
		)
		return "", false, err
	}
	hint := "check logs for details"
	if services.Recoverable(err) {
		hint = "fix the room channel or catalog, or restore the videos; the item will retry on the next drain"
	}
	logging.WarnWithContext(logger, "upload failed; item re-queued", "upload_requeued",
		logging.Error(err),
		logging.ErrorKind(err),
		logging.Int64("requeued_as", newID),
		logging.Int("attempts", entry.Attempts+1),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "upload delayed until the next drain"),
	)
	return "", true, err
}

func (d *Dispatcher) cleanup(logger *slog.Logger, item Item) {
	if dir := strings.TrimSpace(item.WorkingDir); dir != "" && d.insideWorkDir(dir) {
		if err := os.RemoveAll(dir); err != nil {
			logging.WarnWithContext(logger, "failed to remove working directory", "cleanup_failed",
				logging.String("working_dir", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "disk space is not reclaimed"),
			)
		}
	}
	if !d.cfg.Processing.DeleteAfterUpload {
		return
	}
	for _, stem := range item.OriginStems {
		removed, err := fileutil.RemoveStem(stem, d.cfg.Processing.Extensions)
		if err != nil {
			logging.WarnWithContext(logger, "failed to remove original recording", "cleanup_failed",
				logging.String("stem", stem),
				logging.Error(err),
				logging.String(logging.FieldImpact, "original files remain in the recorder directory"),
			)
			continue
		}
		logger.Debug("removed original recording", logging.String("stem", stem), logging.Strings("files", removed))
	}
}

func (d *Dispatcher) insideWorkDir(dir string) bool {
	root := filepath.Clean(d.cfg.Paths.WorkDir)
	rel, err := filepath.Rel(root, filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *Dispatcher) refreshDepth(ctx context.Context) {
	depth, err := d.store.Count(context.WithoutCancel(ctx))
	if err != nil {
		d.logger.Debug("queue depth unavailable", logging.Error(err))
		return
	}
	d.metrics.SetQueueDepth(depth)
}

func (d *Dispatcher) reportStuck(ctx context.Context, report *Report) {
	threshold := d.cfg.Notifications.StuckAfterAttempts
	if threshold < 1 {
		return
	}
	stuck, err := d.store.Stuck(context.WithoutCancel(ctx), threshold)
	if err != nil {
		d.logger.Debug("stuck report unavailable", logging.Error(err))
		return
	}
	report.Stuck = len(stuck)
	if len(stuck) == 0 {
		return
	}
	logging.WarnWithContext(d.logger, "upload items are stuck", "upload_items_stuck",
		logging.Int("count", len(stuck)),
		logging.Int("threshold", threshold),
		logging.String(logging.FieldErrorHint, "run `afterlive queue stuck` to inspect the failing items"),
		logging.String(logging.FieldImpact, "these videos keep retrying on every drain"),
	)
	if d.alerts != nil {
		if err := d.alerts.NotifyStuckItems(ctx, len(stuck), threshold); err != nil {
			d.logger.Debug("stuck notification failed", logging.Error(fmt.Errorf("notify stuck items: %w", err)))
		}
	}
}
