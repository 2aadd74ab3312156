// Package decision decides whether a finished session is worth processing.
package decision

import (
	"context"
	"log/slog"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/live"
	"afterlive/internal/logging"
)

// Reasons reported on a Decision.
const (
	ReasonAccepted          = "accepted"
	ReasonNoFiles           = "no_files"
	ReasonRoomNotConfigured = "room_not_configured"
	ReasonConditionVeto     = "condition_veto"
	ReasonTooShort          = "too_short"
)

// DurationProbe measures a recording's media duration.
type DurationProbe interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Decision is the outcome of ShouldProcess.
type Decision struct {
	Process       bool
	Reason        string
	TotalDuration time.Duration
	// Condition is the vetoing condition for ReasonConditionVeto.
	Condition *config.Condition
}

// Attrs returns the decision as structured log attributes.
func (d Decision) Attrs() []logging.Attr {
	result := "skip"
	if d.Process {
		result = "process"
	}
	attrs := logging.DecisionAttrs("session_processing", result, d.Reason)
	if d.TotalDuration > 0 {
		attrs = append(attrs, logging.Duration("total_duration", d.TotalDuration))
	}
	if d.Condition != nil {
		attrs = append(attrs,
			logging.String("condition_item", d.Condition.Item),
			logging.String("condition_regexp", d.Condition.Regexp),
		)
	}
	return attrs
}

// Engine applies the processing policy. It has no side effects.
type Engine struct {
	probe       DurationProbe
	minDuration time.Duration
	videoExt    string
	logger      *slog.Logger
}

// New constructs an engine using the configured minimum duration and video extension.
func New(cfg *config.Config, probe DurationProbe, logger *slog.Logger) *Engine {
	return &Engine{
		probe:       probe,
		minDuration: cfg.MinDuration(),
		videoExt:    cfg.Processing.VideoExtension,
		logger:      logging.NewComponentLogger(logger, "decision"),
	}
}

// ShouldProcess evaluates, in order: files present, room configured, no vetoing
// condition, total duration at least the configured minimum.
func (e *Engine) ShouldProcess(ctx context.Context, session live.Session, originStems []string, rule *config.Room) (Decision, error) {
	if len(originStems) == 0 {
		return Decision{Reason: ReasonNoFiles}, nil
	}
	if rule == nil {
		return Decision{Reason: ReasonRoomNotConfigured}, nil
	}
	for _, cond := range rule.Conditions {
		if !cond.Matches(session) {
			continue
		}
		if !cond.ShouldProcess() {
			vetoed := cond
			return Decision{Reason: ReasonConditionVeto, Condition: &vetoed}, nil
		}
	}
	if e.minDuration <= 0 || e.probe == nil {
		return Decision{Process: true, Reason: ReasonAccepted}, nil
	}

	logger := logging.WithContext(ctx, e.logger)
	var total time.Duration
	for _, stem := range originStems {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		path := stem + "." + e.videoExt
		d, err := e.probe.Duration(ctx, path)
		if err != nil {
			logging.WarnWithContext(logger, "duration probe failed; counting file as zero", "duration_probe_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the recording exists and ffprobe is installed"),
				logging.String(logging.FieldImpact, "session may be skipped as too short"),
			)
			continue
		}
		total += d
	}
	if total < e.minDuration {
		return Decision{Reason: ReasonTooShort, TotalDuration: total}, nil
	}
	return Decision{Process: true, Reason: ReasonAccepted, TotalDuration: total}, nil
}
