package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"afterlive/internal/live"
	"afterlive/internal/pipeline"
	"afterlive/internal/services"
	"afterlive/internal/testsupport"
)

var start = time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC)

func session() live.Session {
	return live.Session{RoomID: 100, AnchorName: "anchor", LiveTitle: "title", StartTime: start, SessionID: "s-1"}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestWorkingDirName(t *testing.T) {
	if got := pipeline.WorkingDirName(session()); got != "100_20240501-203000" {
		t.Fatalf("unexpected working dir name %q", got)
	}
}

func TestRunMergesPartsIntoSingleOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	rec1 := testsupport.WriteRecording(t, cfg, "100/rec1", "flv", "xml")
	rec2 := testsupport.WriteRecording(t, cfg, "100/rec2", "flv", "xml")

	orch := pipeline.New(cfg, nil, nil)
	job, err := orch.Run(context.Background(), session(), []string{rec1, rec2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantDir := filepath.Join(cfg.Paths.WorkDir, "100_20240501-203000")
	if job.WorkingDir != wantDir {
		t.Fatalf("unexpected working dir %q", job.WorkingDir)
	}
	if len(job.OutputPaths) != 1 || job.OutputPaths[0] != filepath.Join(wantDir, "out1.flv") {
		t.Fatalf("unexpected outputs %v", job.OutputPaths)
	}
	if got := listDir(t, wantDir); strings.Join(got, ",") != "out1.flv" {
		t.Fatalf("expected only out1.flv to remain, got %v", got)
	}
	if len(job.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", job.Warnings)
	}
	for _, stem := range []string{rec1, rec2} {
		if _, err := os.Stat(stem + ".flv"); err != nil {
			t.Fatalf("original %s must be untouched: %v", stem, err)
		}
	}
}

func TestRunMultipartKeepsPartsAndDegradesWithoutChatLog(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(), testsupport.WithMultipart(true))
	rec1 := testsupport.WriteRecording(t, cfg, "100/rec1", "flv", "xml")
	rec2 := testsupport.WriteRecording(t, cfg, "100/rec2", "flv")

	job, err := pipeline.New(cfg, nil, nil).Run(context.Background(), session(), []string{rec1, rec2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(job.OutputPaths) != 2 {
		t.Fatalf("expected two outputs, got %v", job.OutputPaths)
	}
	if got := listDir(t, job.WorkingDir); strings.Join(got, ",") != "out1.flv,out2.flv" {
		t.Fatalf("unexpected working dir contents %v", got)
	}
	// out2 is the renamed staged copy of rec2.
	data, err := os.ReadFile(job.OutputPaths[1])
	if err != nil {
		t.Fatalf("read out2: %v", err)
	}
	if strings.Contains(string(data), "stub-video") {
		t.Fatal("part without chat log must be renamed, not re-encoded")
	}
}

func TestRunSubtitleFailureDegradesToCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithStubScript("DanmakuFactory", testsupport.FailingStub),
		testsupport.WithMultipart(true),
	)
	rec1 := testsupport.WriteRecording(t, cfg, "100/rec1", "flv", "xml")

	job, err := pipeline.New(cfg, nil, nil).Run(context.Background(), session(), []string{rec1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(job.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", job.Warnings)
	}
	var warning *services.SubtitleCompileWarning
	if !errors.As(job.Warnings[0], &warning) {
		t.Fatalf("expected SubtitleCompileWarning, got %T", job.Warnings[0])
	}
	if got := listDir(t, job.WorkingDir); strings.Join(got, ",") != "out1.flv" {
		t.Fatalf("unexpected working dir contents %v", got)
	}
}

func TestRunWorkingDirectoryConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	rec1 := testsupport.WriteRecording(t, cfg, "100/rec1", "flv")
	orch := pipeline.New(cfg, nil, nil)

	existing := orch.WorkingDir(session())
	testsupport.WriteFile(t, filepath.Join(existing, "keep.txt"), 4)

	_, err := orch.Run(context.Background(), session(), []string{rec1})
	var conflict *services.WorkingDirectoryConflictError
	if !errors.As(err, &conflict) || conflict.Path != existing {
		t.Fatalf("expected WorkingDirectoryConflictError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(existing, "keep.txt")); err != nil {
		t.Fatalf("existing directory must be left alone: %v", err)
	}
}

func TestRunNoVideosCreatesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	stem := filepath.Join(cfg.Paths.RecorderDir, "100", "gone")
	testsupport.WriteFile(t, stem+".xml", 10)
	orch := pipeline.New(cfg, nil, nil)

	_, err := orch.Run(context.Background(), session(), []string{stem})
	var noVideos *services.NoVideosFoundError
	if !errors.As(err, &noVideos) {
		t.Fatalf("expected NoVideosFoundError, got %v", err)
	}
	if _, statErr := os.Stat(orch.WorkingDir(session())); !os.IsNotExist(statErr) {
		t.Fatalf("working dir must not be created, stat err = %v", statErr)
	}
}

func TestRunMissingOutputIsExternalToolError(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithStubScript("ffmpeg", testsupport.FailingStub),
		testsupport.WithMultipart(true),
	)
	rec1 := testsupport.WriteRecording(t, cfg, "100/rec1", "flv", "xml")

	_, err := pipeline.New(cfg, nil, nil).Run(context.Background(), session(), []string{rec1})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	runner := pipeline.NewRunner(100*time.Millisecond, nil)
	_, err := runner.Run(context.Background(), t.TempDir(), "sleep", "5")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestRunnerReportsExitCode(t *testing.T) {
	runner := pipeline.NewRunner(time.Second, nil)
	result, err := runner.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.ExitCode != 3 || strings.TrimSpace(result.Stdout) != "out" || strings.TrimSpace(result.Stderr) != "err" {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := runner.Run(context.Background(), t.TempDir(), "definitely-not-a-binary"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool for missing binary, got %v", err)
	}
}
