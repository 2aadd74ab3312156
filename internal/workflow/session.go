package workflow

import (
	"context"
	"errors"

	"afterlive/internal/config"
	"afterlive/internal/decision"
	"afterlive/internal/fileutil"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/notifications"
	"afterlive/internal/services"
	"afterlive/internal/uploadqueue"
)

func (m *Manager) handle(ctx context.Context, event live.Event) {
	room := event.Data.RoomID
	ctx = services.WithRoomID(ctx, room)
	if sid := event.Data.SessionID; sid != "" {
		ctx = services.WithSessionID(ctx, sid)
	}
	logger := logging.WithContext(ctx, m.logger)

	switch event.Type {
	case live.EventSessionStarted:
		start := event.Timestamp
		if start.IsZero() {
			start = m.now()
		}
		if err := m.deps.Tracker.RecordSessionStart(ctx, room, start); err != nil {
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to record session start", "session_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that state_dir is writable"),
			)
			return
		}
		logger.Info("session started",
			logging.String(logging.FieldEventType, "session_started"),
			logging.String("start", start.Format("2006-01-02 15:04:05")),
		)
	case live.EventFileOpening:
		stem, err := m.deps.Tracker.RecordFileOpened(ctx, room, event.Data.RelativePath)
		if err != nil {
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to record opened file", "file_record_failed",
				logging.Error(err),
				logging.String("relative_path", event.Data.RelativePath),
				logging.String(logging.FieldErrorHint, "check that state_dir is writable"),
			)
			return
		}
		logger.Debug("recording file opened", logging.String("stem", stem))
	case live.EventSessionEnded:
		m.sessionEnded(ctx, event)
	}
}

func (m *Manager) sessionEnded(ctx context.Context, event live.Event) {
	room := event.Data.RoomID
	logger := logging.WithContext(ctx, m.logger)

	stems, err := m.deps.Tracker.DrainSessionFiles(ctx, room)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to drain session files", "session_drain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that state_dir is writable"),
		)
		return
	}
	start, err := m.deps.Tracker.Hydrate(ctx, room)
	if err != nil {
		var unknown *services.UnknownSessionError
		if errors.As(err, &unknown) {
			logging.WarnWithContext(logger, "session end without a recorded start; dropping", "session_unknown",
				logging.Error(err),
				logging.Int("files", len(stems)),
				logging.String(logging.FieldErrorHint, "the daemon probably missed SessionStarted for this room"),
				logging.String(logging.FieldImpact, "the session is not processed"),
			)
			return
		}
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to load session start", "session_hydrate_failed", logging.Error(err))
		return
	}

	session := event.Session(start)
	rule, _ := m.cfg.Room(room)
	verdict, err := m.deps.Decider.ShouldProcess(ctx, session, stems, rule)
	if err != nil {
		// Only cancellation reaches here; keep the files for the next session.
		m.restore(ctx, room, stems)
		return
	}
	m.deps.Metrics.Decision(verdict.Process, verdict.Reason)
	logger.Info("session ended", logging.Args(append(verdict.Attrs(),
		logging.String(logging.FieldEventType, "session_ended"),
		logging.Int("files", len(stems)),
	)...)...)

	if !verdict.Process {
		m.discard(ctx, verdict, rule, stems)
		return
	}

	m.wg.Add(1)
	go m.process(ctx, event, session, stems, *rule)
}

// discard removes the originals of a rejected session from a configured room
// when delete_after_upload is set. Sessions from unconfigured rooms are left
// alone.
func (m *Manager) discard(ctx context.Context, verdict decision.Decision, rule *config.Room, stems []string) {
	if !m.cfg.Processing.DeleteAfterUpload || rule == nil {
		return
	}
	if verdict.Reason != decision.ReasonConditionVeto && verdict.Reason != decision.ReasonTooShort {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	for _, stem := range stems {
		removed, err := fileutil.RemoveStem(stem, m.cfg.Processing.Extensions)
		if err != nil {
			logging.WarnWithContext(logger, "failed to remove rejected recording", "original_cleanup_failed",
				logging.String("stem", stem),
				logging.Error(err),
				logging.String(logging.FieldImpact, "recording stays on disk"),
			)
			continue
		}
		if len(removed) > 0 {
			logger.Info("removed rejected recording",
				logging.String(logging.FieldEventType, "original_removed"),
				logging.Strings("paths", removed),
			)
		}
	}
}

func (m *Manager) process(ctx context.Context, event live.Event, session live.Session, stems []string, rule config.Room) {
	defer m.wg.Done()
	logger := logging.WithContext(ctx, m.logger)

	if err := m.pool.Acquire(ctx, 1); err != nil {
		m.restore(ctx, session.RoomID, stems)
		return
	}
	defer m.pool.Release(1)

	m.mu.Lock()
	m.pipelines++
	m.mu.Unlock()
	job, err := m.deps.Pipeline.Run(ctx, session, stems)
	m.mu.Lock()
	m.pipelines--
	if err != nil {
		m.failed++
		m.lastErr = err
	} else {
		m.processed++
	}
	m.mu.Unlock()

	if err != nil {
		attrs := []logging.Attr{
			logging.Error(err),
			logging.ErrorKind(err),
			logging.Strings("stems", stems),
			logging.String(logging.FieldErrorHint, "inspect the working directory and tool output, then remove it to retry"),
		}
		var conflict *services.WorkingDirectoryConflictError
		if errors.As(err, &conflict) {
			attrs = append(attrs, logging.String("working_dir", conflict.Path))
		}
		logging.ErrorWithContext(logger, "session processing failed", "pipeline_failed", attrs...)
		if notifyErr := m.deps.Notifier.NotifyProcessingFailed(context.WithoutCancel(ctx), session.RoomID, err); notifyErr != nil {
			logger.Debug("processing failure alert failed", logging.Error(notifyErr))
		}
		return
	}

	if listeners := m.cfg.Notifications.Webhooks; len(listeners) > 0 && m.deps.Webhooks != nil {
		doc := notifications.NewProcessFinished(m.cfg.Paths.WorkDir, event.Raw, job.OutputPaths, m.now())
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.deps.Webhooks.Notify(ctx, listeners, doc)
		}()
	}

	if !m.cfg.Upload.Enabled || m.deps.Queue == nil {
		return
	}
	item := uploadqueue.Item{
		VideoPaths:  job.OutputPaths,
		OriginStems: job.OriginStems,
		Session:     session,
		Room:        rule,
		WorkingDir:  job.WorkingDir,
	}
	id, err := m.deps.Queue.Enqueue(context.WithoutCancel(ctx), item)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to queue upload", "upload_enqueue_failed",
			logging.Error(err),
			logging.Strings("outputs", job.OutputPaths),
			logging.String(logging.FieldErrorHint, "check the upload queue database"),
			logging.String(logging.FieldImpact, "outputs stay in the working directory without an upload"),
		)
		return
	}
	logger.Info("upload queued",
		logging.String(logging.FieldEventType, "upload_enqueued"),
		logging.Int64(logging.FieldItemID, id),
		logging.Int("videos", len(item.VideoPaths)),
	)
	if m.cfg.Processing.AutoUpload {
		_ = m.TriggerDrain()
	}
}

// restore hands drained stems back to the tracker so the next session of the
// room picks them up.
func (m *Manager) restore(ctx context.Context, room int64, stems []string) {
	logger := logging.WithContext(ctx, m.logger)
	if err := m.deps.Tracker.Restore(context.WithoutCancel(ctx), room, stems); err != nil {
		logging.ErrorWithContext(logger, "failed to restore pending files", "session_restore_failed",
			logging.Error(err),
			logging.Strings("stems", stems),
			logging.String(logging.FieldImpact, "these recordings will not be processed automatically"),
		)
		return
	}
	logging.WarnWithContext(logger, "session not processed before shutdown; files kept pending", "session_deferred",
		logging.Int("files", len(stems)),
		logging.String(logging.FieldImpact, "files are processed with the room's next session"),
	)
}
