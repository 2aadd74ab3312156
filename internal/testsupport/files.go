package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"afterlive/internal/config"
)

// WriteFile fills path with size bytes of a repeating pattern, creating parent
// directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRecording creates <recorder_dir>/<relativeStem>.<ext> for each ext and
// returns the absolute stem.
func WriteRecording(t testing.TB, cfg *config.Config, relativeStem string, exts ...string) string {
	t.Helper()

	stem := filepath.Join(cfg.Paths.RecorderDir, relativeStem)
	for _, ext := range exts {
		WriteFile(t, stem+"."+ext, 64)
	}
	return stem
}
