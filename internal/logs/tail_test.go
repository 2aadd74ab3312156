package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"afterlive/internal/logs"
)

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afterlive.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{2, []string{"b", "c"}},
		{10, []string{"a", "b", "c"}},
		{0, nil},
	}
	for _, tt := range tests {
		lines, offset, err := logs.Tail(path, tt.limit)
		if err != nil {
			t.Fatalf("Tail(%d): %v", tt.limit, err)
		}
		if len(lines) != len(tt.want) {
			t.Fatalf("Tail(%d) = %q, want %q", tt.limit, lines, tt.want)
		}
		for i := range lines {
			if lines[i] != tt.want[i] {
				t.Fatalf("Tail(%d) = %q, want %q", tt.limit, lines, tt.want)
			}
		}
		if offset != 6 {
			t.Fatalf("Tail(%d) offset = %d, want 6", tt.limit, offset)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	lines, offset, err := logs.Tail(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %q %d %v", lines, offset, err)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afterlive.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Tail(path, 1)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := &collector{}
	done := make(chan error, 1)
	go func() { done <- logs.Follow(ctx, path, offset, got.add) }()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()
	deadline := time.Now().Add(5 * time.Second)
	for len(got.snapshot()) == 0 && time.Now().Before(deadline) {
		// Writes before the watcher is registered are picked up by the next event.
		if _, err := file.WriteString("later\n"); err != nil {
			t.Fatalf("append: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if _, err := file.WriteString("partial"); err != nil {
		t.Fatalf("append: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	lines := got.snapshot()
	if len(lines) == 0 {
		t.Fatal("expected appended lines")
	}
	for _, line := range lines {
		if line != "later" {
			t.Fatalf("unexpected line %q in %q", line, lines)
		}
	}
}
