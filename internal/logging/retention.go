package logging

import (
	"cmp"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget selects log files to prune. Keep protects the newest Keep
// matches regardless of age; Exclude names paths that are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	Keep    int
}

type logFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs deletes files matched by targets that are older than
// retentionDays and returns the number removed. retentionDays <= 0 disables it.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, path := range expired(target, cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on paths.log_dir"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

// expired lists the files of target last modified before cutoff, newest
// first, skipping excluded paths and the Keep newest matches.
func expired(target RetentionTarget, cutoff time.Time) []string {
	files := matchLogs(target)
	slices.SortFunc(files, func(a, b logFile) int { return b.modTime.Compare(a.modTime) })
	if target.Keep > 0 {
		files = files[min(target.Keep, len(files)):]
	}
	var out []string
	for _, f := range files {
		if f.modTime.Before(cutoff) {
			out = append(out, f.path)
		}
	}
	return out
}

func matchLogs(target RetentionTarget) []logFile {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := cmp.Or(strings.TrimSpace(target.Pattern), "*")
	skip := absPaths(target.Exclude)

	var files []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
			continue
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if slices.Contains(skip, path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: path, modTime: info.ModTime()})
	}
	return files
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, absPath(p))
		}
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
