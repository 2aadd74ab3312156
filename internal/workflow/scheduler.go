package workflow

import (
	"context"
	"errors"
	"time"

	"afterlive/internal/logging"
	"afterlive/internal/uploadqueue"
)

// TriggerDrain asks the scheduler for an upload drain. Requests made while a
// drain is pending or running are coalesced into one follow-up drain, so
// items enqueued mid-drain are picked up as soon as it finishes.
func (m *Manager) TriggerDrain() error {
	if !m.uploadsEnabled() {
		return ErrUploadDisabled
	}
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case m.drainRequests <- struct{}{}:
	default:
	}
	return nil
}

// DrainRunning reports whether an upload drain is in progress.
func (m *Manager) DrainRunning() bool {
	return m.deps.Uploads != nil && m.deps.Uploads.Running()
}

// nextOccurrence returns the first hour:minute strictly after now in now's
// location.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (m *Manager) runScheduler(ctx context.Context, hour, minute int) {
	defer m.wg.Done()

	if m.cfg.Upload.RunOnStart {
		m.drain(ctx, "startup")
	}
	for {
		now := m.now()
		next := nextOccurrence(now, hour, minute)
		m.mu.Lock()
		m.nextDrain = next
		m.mu.Unlock()

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.drain(ctx, "schedule")
		case <-m.drainRequests:
			timer.Stop()
			m.drain(ctx, "trigger")
		}
	}
}

func (m *Manager) drain(ctx context.Context, reason string) {
	logger := m.logger.With(logging.String("trigger", reason))
	report, err := m.deps.Uploads.DrainAndDispatch(ctx)
	switch {
	case errors.Is(err, uploadqueue.ErrDrainInProgress):
		logger.Debug("upload drain skipped; another drain is running")
		return
	case err != nil:
		m.setLastError(err)
		logging.ErrorWithContext(logger, "upload drain failed", "upload_drain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the upload queue database"),
		)
		return
	}
	total := len(report.Uploaded) + len(report.Requeued) + len(report.Lost)
	if total == 0 {
		logger.Debug("upload queue empty")
		return
	}
	logger.Info("upload drain finished",
		logging.String(logging.FieldEventType, "upload_drain_finished"),
		logging.Int("uploaded", len(report.Uploaded)),
		logging.Int("requeued", len(report.Requeued)),
		logging.Int("lost", len(report.Lost)),
		logging.Duration("duration", report.Duration),
	)
}
