package workflow

import (
	"context"
	"slices"
	"time"

	"afterlive/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running          bool      `json:"running"`
	ActiveRooms      []int64   `json:"active_rooms"`
	RunningPipelines int       `json:"running_pipelines"`
	QueueDepth       int       `json:"queue_depth"`
	DrainRunning     bool      `json:"drain_running"`
	NextDrain        time.Time `json:"next_drain,omitzero"`
	Processed        int       `json:"processed"`
	Failed           int       `json:"failed"`
	LastError        string    `json:"last_error,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running:          m.running,
		ActiveRooms:      make([]int64, 0, len(m.lanes)),
		RunningPipelines: m.pipelines,
		NextDrain:        m.nextDrain,
		Processed:        m.processed,
		Failed:           m.failed,
	}
	for room := range m.lanes {
		summary.ActiveRooms = append(summary.ActiveRooms, room)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()
	slices.Sort(summary.ActiveRooms)

	summary.DrainRunning = m.DrainRunning()
	if m.deps.Queue != nil {
		depth, err := m.deps.Queue.Count(ctx)
		if err != nil {
			m.logger.Warn("failed to read upload queue depth", logging.Error(err))
		} else {
			summary.QueueDepth = depth
			m.deps.Metrics.SetQueueDepth(depth)
		}
	}
	return summary
}
