package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    time.Duration
		wantErr bool
	}{
		{"format", `{"format":{"duration":"123.25"}}`, 123250 * time.Millisecond, false},
		{"streams", `{"format":{},"streams":[{"codec_type":"audio","duration":"10"},{"codec_type":"video","duration":"12.5"}]}`, 12500 * time.Millisecond, false},
		{"invalid values", `{"format":{"duration":"bad"},"streams":[{"duration":"-3"}]}`, 0, true},
		{"empty", `{}`, 0, true},
		{"not json", `nope`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseDuration = %v, want %v", got, tt.want)
			}
		})
	}
}

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestProberDuration(t *testing.T) {
	stub := writeStub(t, `printf '{"format":{"duration":"90.5"}}'`+"\n")
	prober := Prober{Binary: stub, Timeout: 5 * time.Second}

	got, err := prober.Duration(context.Background(), "/rec/a.flv")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 90500*time.Millisecond {
		t.Fatalf("unexpected duration %v", got)
	}
}

func TestProberDurationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"exit status", "echo 'no such file' >&2\nexit 1\n"},
		{"bad json", "echo 'not json'\n"},
		{"no duration", `printf '{"format":{}}'` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := Prober{Binary: writeStub(t, tt.body)}
			if _, err := prober.Duration(context.Background(), "/rec/a.flv"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestProberRejectsEmptyPath(t *testing.T) {
	if _, err := (Prober{}).Duration(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}
