package api

import (
	"time"

	"afterlive/internal/deps"
	"afterlive/internal/tracker"
	"afterlive/internal/uploadqueue"
	"afterlive/internal/workflow"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromEntry converts a queue entry to its API representation.
func FromEntry(entry uploadqueue.Entry) QueueItem {
	item := entry.Item
	paths := item.VideoPaths
	if paths == nil {
		paths = []string{}
	}
	return QueueItem{
		ID:            entry.ID,
		RoomID:        item.Session.RoomID,
		Anchor:        item.Session.AnchorName,
		Title:         item.Session.LiveTitle,
		SessionStart:  formatTime(item.Session.StartTime),
		VideoPaths:    paths,
		WorkingDir:    item.WorkingDir,
		Attempts:      entry.Attempts,
		FirstQueuedAt: formatTime(entry.FirstQueuedAt),
		LastAttemptAt: formatTime(entry.LastAttemptAt),
		LastError:     entry.LastError,
	}
}

// FromEntries converts queue entries, preserving order. The result is never nil.
func FromEntries(entries []uploadqueue.Entry) []QueueItem {
	out := make([]QueueItem, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromStatusSummary converts a workflow summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	rooms := summary.ActiveRooms
	if rooms == nil {
		rooms = []int64{}
	}
	return WorkflowStatus{
		Running:          summary.Running,
		ActiveRooms:      rooms,
		RunningPipelines: summary.RunningPipelines,
		QueueDepth:       summary.QueueDepth,
		DrainRunning:     summary.DrainRunning,
		NextDrain:        formatTime(summary.NextDrain),
		Processed:        summary.Processed,
		Failed:           summary.Failed,
		LastError:        summary.LastError,
	}
}

// FromRoomStates converts tracker snapshots.
func FromRoomStates(states []tracker.RoomState) []PendingSession {
	out := make([]PendingSession, 0, len(states))
	for _, rs := range states {
		files := rs.Pending
		if files == nil {
			files = []string{}
		}
		out = append(out, PendingSession{
			RoomID:    rs.RoomID,
			StartTime: formatTime(rs.StartTime),
			Files:     files,
		})
	}
	return out
}

// FromDependencies converts binary checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		})
	}
	return out
}
