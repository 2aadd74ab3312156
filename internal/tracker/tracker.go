// Package tracker remembers, across restarts, when each room's broadcast
// started and which recording files it produced.
package tracker

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/state"
)

// Tracker records session starts and opened files in a state.Store.
type Tracker struct {
	store       state.Store
	recorderDir string
	extensions  []string
	videoExt    string
	logger      *slog.Logger
}

// New constructs a tracker using the configured recorder root and extensions.
func New(cfg *config.Config, store state.Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:       store,
		recorderDir: cfg.Paths.RecorderDir,
		extensions:  append([]string(nil), cfg.Processing.Extensions...),
		videoExt:    cfg.Processing.VideoExtension,
		logger:      logging.NewComponentLogger(logger, "tracker"),
	}
}

func roomKey(roomID int64) string {
	return strconv.FormatInt(roomID, 10)
}

// RecordSessionStart stores start as the room's session start, replacing any earlier value.
func (t *Tracker) RecordSessionStart(ctx context.Context, roomID int64, start time.Time) error {
	if err := t.store.Put(ctx, state.NamespaceTimes, roomKey(roomID), start.Format(time.RFC3339)); err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "record start", "persist session start", err)
	}
	logging.WithContext(ctx, t.logger).Info("session start recorded",
		logging.String(logging.FieldEventType, "session_start_recorded"),
		logging.String("start", start.Format(time.RFC3339)),
	)
	return nil
}

// RecordFileOpened appends the recording stem for relativePath to the room's pending list.
// A file that is not on disk yet is still recorded.
func (t *Tracker) RecordFileOpened(ctx context.Context, roomID int64, relativePath string) (string, error) {
	if strings.TrimSpace(relativePath) == "" {
		return "", services.Wrap(services.ErrValidation, "tracker", "record file", "relative path is empty", nil)
	}
	stem := t.Stem(relativePath)

	err := t.store.Update(ctx, state.NamespaceVideos, roomKey(roomID), func(raw json.RawMessage) (any, error) {
		stems, err := decodeStems(raw)
		if err != nil {
			return nil, err
		}
		return append(stems, stem), nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "tracker", "record file", "persist pending stem", err)
	}

	logger := logging.WithContext(ctx, t.logger)
	videoPath := stem + "." + t.videoExt
	if _, statErr := os.Stat(videoPath); statErr != nil {
		logging.WarnWithContext(logger, "recording file not found on disk", "recording_missing",
			logging.String("path", videoPath),
			logging.String(logging.FieldErrorHint, "check paths.recorder_dir matches the recorder's output root"),
			logging.String(logging.FieldImpact, "stem kept; staging will skip missing files"),
		)
	} else {
		logger.Debug("recording file tracked", logging.String("stem", stem))
	}
	return stem, nil
}

// Stem joins relativePath with the recorder root and strips a configured extension.
func (t *Tracker) Stem(relativePath string) string {
	path := relativePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.recorderDir, path)
	}
	path = filepath.Clean(path)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, known := range t.extensions {
		if strings.EqualFold(ext, known) {
			return strings.TrimSuffix(path, filepath.Ext(path))
		}
	}
	return path
}

// DrainSessionFiles returns the room's pending stems in append order and clears the list
// in the same update, so an append racing the drain lands in exactly one of the two.
func (t *Tracker) DrainSessionFiles(ctx context.Context, roomID int64) ([]string, error) {
	var drained []string
	err := t.store.Update(ctx, state.NamespaceVideos, roomKey(roomID), func(raw json.RawMessage) (any, error) {
		stems, err := decodeStems(raw)
		if err != nil {
			return nil, err
		}
		drained = stems
		return []string{}, nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tracker", "drain", "drain pending stems", err)
	}
	if drained == nil {
		drained = []string{}
	}
	return drained, nil
}

// Restore puts stems back in front of the room's pending list. It undoes a
// drain whose session could not be handed to the pipeline.
func (t *Tracker) Restore(ctx context.Context, roomID int64, stems []string) error {
	if len(stems) == 0 {
		return nil
	}
	err := t.store.Update(ctx, state.NamespaceVideos, roomKey(roomID), func(raw json.RawMessage) (any, error) {
		current, err := decodeStems(raw)
		if err != nil {
			return nil, err
		}
		return append(append([]string(nil), stems...), current...), nil
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "tracker", "restore", "restore pending stems", err)
	}
	return nil
}

// Hydrate returns the stored session start for the room.
func (t *Tracker) Hydrate(ctx context.Context, roomID int64) (time.Time, error) {
	var value string
	found, err := t.store.Get(ctx, state.NamespaceTimes, roomKey(roomID), &value)
	if err != nil {
		return time.Time{}, &services.UnknownSessionError{RoomID: roomID, Err: err}
	}
	if !found || strings.TrimSpace(value) == "" {
		return time.Time{}, &services.UnknownSessionError{RoomID: roomID}
	}
	start, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &services.UnknownSessionError{RoomID: roomID, Err: err}
	}
	return start, nil
}

// RoomState is a snapshot of one room's persisted tracking data.
type RoomState struct {
	RoomID    int64     `json:"room_id"`
	StartTime time.Time `json:"start_time,omitzero"`
	Pending   []string  `json:"pending"`
}

// Pending returns every room that has a start time or pending stems, ordered by room id.
func (t *Tracker) Pending(ctx context.Context) ([]RoomState, error) {
	rooms := make(map[int64]*RoomState)
	get := func(id int64) *RoomState {
		rs, ok := rooms[id]
		if !ok {
			rs = &RoomState{RoomID: id, Pending: []string{}}
			rooms[id] = rs
		}
		return rs
	}

	timeKeys, err := t.store.Keys(ctx, state.NamespaceTimes)
	if err != nil {
		return nil, err
	}
	for _, key := range timeKeys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		start, err := t.Hydrate(ctx, id)
		if err != nil {
			var unknown *services.UnknownSessionError
			if errors.As(err, &unknown) {
				continue
			}
			return nil, err
		}
		get(id).StartTime = start
	}

	videoKeys, err := t.store.Keys(ctx, state.NamespaceVideos)
	if err != nil {
		return nil, err
	}
	for _, key := range videoKeys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		var stems []string
		if _, err := t.store.Get(ctx, state.NamespaceVideos, key, &stems); err != nil {
			return nil, err
		}
		if len(stems) == 0 {
			continue
		}
		get(id).Pending = stems
	}

	out := make([]RoomState, 0, len(rooms))
	for _, rs := range rooms {
		out = append(out, *rs)
	}
	slices.SortFunc(out, func(a, b RoomState) int { return cmp.Compare(a.RoomID, b.RoomID) })
	return out, nil
}

func decodeStems(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stems []string
	if err := json.Unmarshal(raw, &stems); err != nil {
		return nil, fmt.Errorf("decode pending stems: %w", err)
	}
	return stems, nil
}
