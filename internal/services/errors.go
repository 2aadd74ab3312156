package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap tags err with marker, one of the sentinels above, and prefixes it
// with whichever of stage, operation and message are set. A nil marker
// classifies the failure as transient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := joinSet(": ", stage, operation, message)
	if detail == "" {
		detail = "service failure"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

func joinSet(sep string, parts ...string) string {
	set := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			set = append(set, p)
		}
	}
	return strings.Join(set, sep)
}

// UnknownSessionError reports a session end without a recorded start.
type UnknownSessionError struct {
	RoomID int64
	Err    error
}

func (e *UnknownSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("room %d: no usable session start: %v", e.RoomID, e.Err)
	}
	return fmt.Sprintf("room %d: no recorded session start", e.RoomID)
}

func (e *UnknownSessionError) Unwrap() error { return e.Err }

func (e *UnknownSessionError) Is(target error) bool { return target == ErrNotFound }

// WorkingDirectoryConflictError reports a working directory that already exists.
// The directory is never removed automatically.
type WorkingDirectoryConflictError struct {
	Path string
}

func (e *WorkingDirectoryConflictError) Error() string {
	return fmt.Sprintf("working directory %s already exists", e.Path)
}

func (e *WorkingDirectoryConflictError) Is(target error) bool { return target == ErrValidation }

// ChannelNotFoundError reports that no upload channel could be resolved for a session.
type ChannelNotFoundError struct {
	Parent string
	Child  string
	Reason string
}

func (e *ChannelNotFoundError) Error() string {
	msg := fmt.Sprintf("no channel for area %q/%q", e.Parent, e.Child)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ChannelNotFoundError) Is(target error) bool { return target == ErrConfiguration }

// NoVideosFoundError reports that none of the expected video files exist.
type NoVideosFoundError struct {
	Paths []string
}

func (e *NoVideosFoundError) Error() string {
	if len(e.Paths) == 0 {
		return "no video files found"
	}
	return fmt.Sprintf("no video files found (checked %d paths)", len(e.Paths))
}

func (e *NoVideosFoundError) Is(target error) bool { return target == ErrNotFound }

// SubtitleCompileWarning reports a chat log that produced no subtitle track.
// It degrades the affected part to a plain copy and is never fatal.
type SubtitleCompileWarning struct {
	ChatLog string
	Err     error
}

func (e *SubtitleCompileWarning) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat log %s produced no subtitle track: %v", e.ChatLog, e.Err)
	}
	return fmt.Sprintf("chat log %s produced no subtitle track", e.ChatLog)
}

func (e *SubtitleCompileWarning) Unwrap() error { return e.Err }

// Recoverable reports whether err belongs to the failure classes an operator is
// expected to fix without losing the queued videos.
func Recoverable(err error) bool {
	var channelErr *ChannelNotFoundError
	var videosErr *NoVideosFoundError
	return errors.As(err, &channelErr) || errors.As(err, &videosErr)
}

// Kind returns a short classification label for metrics and logs.
func Kind(err error) string {
	var (
		unknown  *UnknownSessionError
		conflict *WorkingDirectoryConflictError
		channel  *ChannelNotFoundError
		videos   *NoVideosFoundError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &unknown):
		return "unknown_session"
	case errors.As(err, &conflict):
		return "working_dir_conflict"
	case errors.As(err, &channel):
		return "channel_not_found"
	case errors.As(err, &videos):
		return "no_videos"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}
