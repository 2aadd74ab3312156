package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"afterlive/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if !CheckFreeSpace("space", dir, 0).Passed {
		t.Fatal("disabled check must pass")
	}
	if CheckFreeSpace("space", dir, 1<<30).Passed {
		t.Fatal("an exabyte requirement must fail")
	}
	if CheckFreeSpace("space", filepath.Join(dir, "missing"), 1).Passed {
		t.Fatal("missing path must fail")
	}
}

func TestCheckReadableFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "catalog.yaml")
	if !CheckReadableFile("catalog", missing, true).Passed {
		t.Fatal("optional missing file must pass")
	}
	if CheckReadableFile("token", missing, false).Passed {
		t.Fatal("required missing file must fail")
	}
	if err := os.WriteFile(missing, []byte("areas: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !CheckReadableFile("token", missing, false).Passed {
		t.Fatal("existing file must pass")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RecorderDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_UploadChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RecorderDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Upload.Enabled = true
	cfg.Upload.CredentialFile = filepath.Join(t.TempDir(), "token.json")
	cfg.Upload.CatalogFile = filepath.Join(t.TempDir(), "catalog.yaml")

	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Upload credentials" {
		t.Fatalf("expected only the credential check to fail, got %+v", failed)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	bin := t.TempDir()
	for _, name := range []string{"ffmpeg", "DanmakuFactory"} {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", bin)
	cfg := config.Default()

	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		switch s.Name {
		case "FFprobe":
			if s.Available || !s.Optional {
				t.Fatalf("ffprobe should be missing and optional with no minimum duration: %+v", s)
			}
		default:
			if !s.Available {
				t.Fatalf("expected %s available: %+v", s.Name, s)
			}
		}
	}
}
