package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"afterlive/internal/config"
	"afterlive/internal/fileutil"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/preflight"
	"afterlive/internal/services"
	"afterlive/internal/telemetry"
)

// Stage names used in logs, metrics and spans.
const (
	StageStage     = "stage"
	StageMerge     = "merge"
	StageSubtitle  = "subtitle"
	StageComposite = "composite"
)

const (
	concatListName = "files.txt"
	mergedStemName = "record"
	subtitleExt    = "ass"
)

// Job describes one pipeline run.
type Job struct {
	ID          string
	Session     live.Session
	WorkingDir  string
	OriginStems []string
	// Stems are the intermediate stems inside WorkingDir.
	Stems       []string
	OutputPaths []string
	// Warnings collects non-fatal problems such as subtitle compile failures.
	Warnings []error
}

// Orchestrator runs the processing pipeline.
type Orchestrator struct {
	cfg     *config.Config
	runner  *Runner
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// New constructs an orchestrator. metrics may be nil.
func New(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		runner:  NewRunner(cfg.ToolTimeout(), logger),
		metrics: metrics,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
}

// WorkingDirName is <room>_<YYYYMMDD-HHMMSS of start>.
func WorkingDirName(session live.Session) string {
	return fmt.Sprintf("%d_%s", session.RoomID, session.StartTime.Format("20060102-150405"))
}

// WorkingDir returns the working directory a session would use.
func (o *Orchestrator) WorkingDir(session live.Session) string {
	return filepath.Join(o.cfg.Paths.WorkDir, WorkingDirName(session))
}

// Run processes originStems for session and returns the job with its outputs.
// The originals are never modified.
func (o *Orchestrator) Run(ctx context.Context, session live.Session, originStems []string) (*Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Session:     session,
		WorkingDir:  o.WorkingDir(session),
		OriginStems: append([]string(nil), originStems...),
	}
	ctx = services.WithRoomID(ctx, session.RoomID)
	ctx = services.WithSessionID(ctx, session.SessionID)

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run")
	o.metrics.PipelineStarted()
	err := o.run(ctx, job)
	outcome := "success"
	if err != nil {
		outcome = services.Kind(err)
	}
	o.metrics.PipelineFinished(outcome)
	telemetry.EndSpan(span, err)
	if err != nil {
		return job, err
	}

	logging.WithContext(ctx, o.logger).Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_completed"),
		logging.String("job_id", job.ID),
		logging.String("working_dir", job.WorkingDir),
		logging.Strings("outputs", job.OutputPaths),
		logging.Int("warnings", len(job.Warnings)),
	)
	return job, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job) error {
	steps := []struct {
		name string
		fn   func(context.Context, *Job) error
	}{
		{StageStage, o.stage},
		{StageMerge, o.merge},
		{StageSubtitle, o.subtitle},
		{StageComposite, o.composite},
	}
	for _, step := range steps {
		if err := o.runStage(ctx, job, step.name, step.fn); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, job *Job, name string, fn func(context.Context, *Job) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, o.logger)
	ctx, span := telemetry.StartSpan(ctx, "pipeline."+name)
	start := time.Now()

	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_started"))
	err := fn(ctx, job)
	elapsed := time.Since(start)
	o.metrics.ObserveStage(name, elapsed)
	telemetry.EndSpan(span, err)

	if err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.Duration("duration", elapsed),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_completed"),
		logging.Duration("duration", elapsed),
		logging.Int("stems", len(job.Stems)),
	)
	return nil
}

func (o *Orchestrator) videoExt() string   { return o.cfg.Processing.VideoExtension }
func (o *Orchestrator) chatLogExt() string { return o.cfg.Processing.ChatLogExtension }

// stage copies every available recording into a fresh working directory.
func (o *Orchestrator) stage(ctx context.Context, job *Job) error {
	logger := logging.WithContext(ctx, o.logger)

	var available []string
	for _, stem := range job.OriginStems {
		if fileutil.Exists(stem + "." + o.videoExt()) {
			available = append(available, stem)
			continue
		}
		logging.WarnWithContext(logger, "recording missing; skipping part", "recording_missing",
			logging.String("path", stem+"."+o.videoExt()),
			logging.String(logging.FieldImpact, "part is left out of the output"),
		)
	}
	if len(available) == 0 {
		return &services.NoVideosFoundError{Paths: job.OriginStems}
	}

	if _, err := os.Stat(job.WorkingDir); err == nil {
		return &services.WorkingDirectoryConflictError{Path: job.WorkingDir}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, StageStage, "stat working dir", job.WorkingDir, err)
	}
	if err := os.MkdirAll(o.cfg.Paths.WorkDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, StageStage, "create work root", o.cfg.Paths.WorkDir, err)
	}
	if minGiB := o.cfg.Processing.MinFreeGiB; minGiB > 0 {
		if check := preflight.CheckFreeSpace("work dir", o.cfg.Paths.WorkDir, minGiB); !check.Passed {
			return services.Wrap(services.ErrTransient, StageStage, "free space", check.Detail, nil)
		}
	}
	if err := os.Mkdir(job.WorkingDir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &services.WorkingDirectoryConflictError{Path: job.WorkingDir}
		}
		return services.Wrap(services.ErrTransient, StageStage, "create working dir", job.WorkingDir, err)
	}

	job.Stems = job.Stems[:0]
	for i, stem := range available {
		staged := filepath.Join(job.WorkingDir, fmt.Sprintf("record%d", i+1))
		for _, ext := range o.cfg.Processing.Extensions {
			src := stem + "." + ext
			if !fileutil.Exists(src) {
				continue
			}
			if err := fileutil.CopyFileVerified(src, staged+"."+ext); err != nil {
				return services.Wrap(services.ErrTransient, StageStage, "copy", src, err)
			}
		}
		job.Stems = append(job.Stems, staged)
	}
	return nil
}

// merge concatenates the staged parts into one recording when multipart is off.
func (o *Orchestrator) merge(ctx context.Context, job *Job) error {
	if o.cfg.Processing.Multipart || len(job.Stems) < 2 {
		return nil
	}
	logger := logging.WithContext(ctx, o.logger)
	merged := filepath.Join(job.WorkingDir, mergedStemName)
	mergedVideo := merged + "." + o.videoExt()

	listPath := filepath.Join(job.WorkingDir, concatListName)
	var list strings.Builder
	for _, stem := range job.Stems {
		fmt.Fprintf(&list, "file '%s'\n", escapeConcatPath(stem+"."+o.videoExt()))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, StageMerge, "write concat list", listPath, err)
	}

	if _, err := o.runner.Run(ctx, job.WorkingDir, o.cfg.FFmpegBinary(),
		"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", mergedVideo); err != nil {
		return err
	}
	if !fileutil.NonEmpty(mergedVideo) {
		return services.Wrap(services.ErrExternalTool, StageMerge, "concat", "merged video missing or empty", nil)
	}

	var chatLogs []string
	for _, stem := range job.Stems {
		if path := stem + "." + o.chatLogExt(); fileutil.NonEmpty(path) {
			chatLogs = append(chatLogs, path)
		}
	}
	if len(chatLogs) > 0 {
		mergedChat := merged + "." + o.chatLogExt()
		args := append([]string{"-o", mergedChat, "-i"}, chatLogs...)
		args = append(args, o.cfg.Tools.DanmakuArgs...)
		_, err := o.runner.Run(ctx, job.WorkingDir, o.cfg.DanmakuFactoryBinary(), args...)
		if err != nil || !fileutil.NonEmpty(mergedChat) {
			warning := &services.SubtitleCompileWarning{ChatLog: mergedChat, Err: err}
			job.Warnings = append(job.Warnings, warning)
			logging.WarnWithContext(logger, "chat log merge failed", "chatlog_merge_failed",
				logging.Error(warning),
				logging.String(logging.FieldImpact, "merged video will have no subtitles"),
			)
			_ = os.Remove(mergedChat)
		}
	}

	for _, stem := range job.Stems {
		if _, err := fileutil.RemoveStem(stem, []string{o.videoExt(), o.chatLogExt()}); err != nil {
			logging.WarnWithContext(logger, "staged part cleanup failed", "cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "extra files remain in the working directory"),
			)
		}
	}
	_ = os.Remove(listPath)
	job.Stems = []string{merged}
	return nil
}

// subtitle compiles each stem's chat log into an .ass file.
func (o *Orchestrator) subtitle(ctx context.Context, job *Job) error {
	logger := logging.WithContext(ctx, o.logger)
	for _, stem := range job.Stems {
		chatLog := stem + "." + o.chatLogExt()
		if !fileutil.NonEmpty(chatLog) {
			continue
		}
		ass := stem + "." + subtitleExt
		args := append([]string{"-o", ass, "-i", chatLog}, o.cfg.Tools.DanmakuArgs...)
		_, err := o.runner.Run(ctx, job.WorkingDir, o.cfg.DanmakuFactoryBinary(), args...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil && fileutil.NonEmpty(ass) {
			continue
		}
		warning := &services.SubtitleCompileWarning{ChatLog: chatLog, Err: err}
		job.Warnings = append(job.Warnings, warning)
		_ = os.Remove(ass)
		logging.WarnWithContext(logger, "subtitle compile failed", "subtitle_compile_failed",
			logging.Error(warning),
			logging.String(logging.FieldErrorHint, "run DanmakuFactory on the chat log manually to see the error"),
			logging.String(logging.FieldImpact, "part is copied without subtitles"),
		)
	}
	return nil
}

// composite produces out<i>.flv per stem and removes the stem's intermediates.
func (o *Orchestrator) composite(ctx context.Context, job *Job) error {
	logger := logging.WithContext(ctx, o.logger)
	job.OutputPaths = job.OutputPaths[:0]
	for i, stem := range job.Stems {
		video := stem + "." + o.videoExt()
		ass := stem + "." + subtitleExt
		output := filepath.Join(job.WorkingDir, fmt.Sprintf("out%d.%s", i+1, o.videoExt()))

		if fileutil.NonEmpty(ass) {
			filter := "subtitles=" + escapeFilterPath(filepath.Base(ass))
			if _, err := o.runner.Run(ctx, job.WorkingDir, o.cfg.FFmpegBinary(),
				"-hide_banner", "-y", "-i", video, "-vf", filter, output); err != nil {
				return err
			}
		} else if err := fileutil.MoveFile(video, output); err != nil {
			return services.Wrap(services.ErrExternalTool, StageComposite, "rename", video, err)
		}

		if !fileutil.NonEmpty(output) {
			return services.Wrap(services.ErrExternalTool, StageComposite, "burn subtitles",
				fmt.Sprintf("%s missing or empty", filepath.Base(output)), nil)
		}
		if _, err := fileutil.RemoveStem(stem, []string{o.videoExt(), subtitleExt, o.chatLogExt()}); err != nil {
			logging.WarnWithContext(logger, "intermediate cleanup failed", "cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "extra files remain in the working directory"),
			)
		}
		job.OutputPaths = append(job.OutputPaths, output)
	}
	return nil
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// escapeFilterPath quotes a filename for use as a filter option value inside
// an ffmpeg filtergraph.
func escapeFilterPath(path string) string {
	value := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(path)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(value)
}
