package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes an upload queue entry in a transport-friendly format.
type QueueItem struct {
	ID            int64    `json:"id"`
	RoomID        int64    `json:"roomId"`
	Anchor        string   `json:"anchor"`
	Title         string   `json:"title"`
	SessionStart  string   `json:"sessionStart,omitempty"`
	VideoPaths    []string `json:"videoPaths"`
	WorkingDir    string   `json:"workingDir"`
	Attempts      int      `json:"attempts"`
	FirstQueuedAt string   `json:"firstQueuedAt,omitempty"`
	LastAttemptAt string   `json:"lastAttemptAt,omitempty"`
	LastError     string   `json:"lastError,omitempty"`
}

// QueueListResponse wraps a collection of queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// WorkflowStatus summarizes the event workflow and upload scheduler.
type WorkflowStatus struct {
	Running          bool    `json:"running"`
	ActiveRooms      []int64 `json:"activeRooms"`
	RunningPipelines int     `json:"runningPipelines"`
	QueueDepth       int     `json:"queueDepth"`
	DrainRunning     bool    `json:"drainRunning"`
	NextDrain        string  `json:"nextDrain,omitempty"`
	Processed        int     `json:"processed"`
	Failed           int     `json:"failed"`
	LastError        string  `json:"lastError,omitempty"`
}

// PendingSession is a room with a recorded start or files awaiting SessionEnded.
type PendingSession struct {
	RoomID    int64    `json:"roomId"`
	StartTime string   `json:"startTime,omitempty"`
	Files     []string `json:"files"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Pending      []PendingSession   `json:"pending"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// DrainResponse acknowledges a drain request.
type DrainResponse struct {
	Status string `json:"status"`
}

// EventResponse acknowledges a recorder webhook.
type EventResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
