package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType enumerates recorder webhook events.
type EventType string

const (
	EventSessionStarted EventType = "SessionStarted"
	EventFileOpening    EventType = "FileOpening"
	EventFileClosed     EventType = "FileClosed"
	EventSessionEnded   EventType = "SessionEnded"
	EventStreamStarted  EventType = "StreamStarted"
	EventStreamEnded    EventType = "StreamEnded"
)

// Handled reports whether the daemon acts on this event type.
func (t EventType) Handled() bool {
	switch t {
	case EventSessionStarted, EventFileOpening, EventSessionEnded:
		return true
	default:
		return false
	}
}

// EventData is the recorder's event payload.
type EventData struct {
	RoomID         int64   `json:"RoomId"`
	ShortID        int64   `json:"ShortId"`
	Name           string  `json:"Name"`
	Title          string  `json:"Title"`
	AreaNameParent string  `json:"AreaNameParent"`
	AreaNameChild  string  `json:"AreaNameChild"`
	SessionID      string  `json:"SessionId"`
	RelativePath   string  `json:"RelativePath,omitempty"`
	FileSize       int64   `json:"FileSize,omitempty"`
	Duration       float64 `json:"Duration,omitempty"`
}

// Event is one webhook delivery from the recorder. Raw holds the original
// EventData bytes so they can be forwarded unchanged to listeners.
type Event struct {
	Type      EventType       `json:"EventType"`
	Timestamp time.Time       `json:"EventTimestamp"`
	ID        string          `json:"EventId"`
	Data      EventData       `json:"-"`
	Raw       json.RawMessage `json:"EventData"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	event.Type = EventType(strings.TrimSpace(string(event.Type)))
	if event.Type == "" {
		return Event{}, errors.New("decode event: missing EventType")
	}
	if len(event.Raw) == 0 || string(event.Raw) == "null" {
		return Event{}, errors.New("decode event: missing EventData")
	}
	if err := json.Unmarshal(event.Raw, &event.Data); err != nil {
		return Event{}, fmt.Errorf("decode event data: %w", err)
	}
	if event.Type.Handled() && event.Data.RoomID == 0 {
		return Event{}, errors.New("decode event: missing RoomId")
	}
	return event, nil
}

// Session builds the session described by the event with the given start time.
func (e Event) Session(start time.Time) Session {
	return Session{
		RoomID:         e.Data.RoomID,
		ShortID:        e.Data.ShortID,
		AnchorName:     strings.TrimSpace(e.Data.Name),
		LiveTitle:      strings.TrimSpace(e.Data.Title),
		StartTime:      start,
		ParentCategory: strings.TrimSpace(e.Data.AreaNameParent),
		ChildCategory:  strings.TrimSpace(e.Data.AreaNameChild),
		SessionID:      strings.TrimSpace(e.Data.SessionID),
	}
}
