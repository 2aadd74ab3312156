package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"afterlive/internal/config"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/testsupport"
	"afterlive/internal/upload"
)

type fakeYouTube struct {
	mu     sync.Mutex
	bodies []string
	auth   []string
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	n := len(f.bodies)
	f.mu.Unlock()

	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/videos") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("yt-%d", n)})
}

func newYouTubeConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled(), testsupport.WithConfig(func(c *config.Config) {
		c.Upload.Privacy = "unlisted"
	}))
	tok := &oauth2.Token{AccessToken: "access-1", TokenType: "Bearer", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Hour)}
	if err := upload.SaveToken(cfg.Upload.CredentialFile, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	return cfg
}

func TestYouTubeClientUploadsEachPart(t *testing.T) {
	cfg := newYouTubeConfig(t)
	api := &fakeYouTube{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	part1 := filepath.Join(dir, "out1.flv")
	part2 := filepath.Join(dir, "out2.flv")
	testsupport.WriteFile(t, part1, 64)
	testsupport.WriteFile(t, part2, 64)

	client := upload.NewYouTubeClient(cfg, logging.NewNop(), option.WithEndpoint(server.URL+"/"))
	id, err := client.Upload(context.Background(), upload.Request{
		Files:       []upload.Part{{Path: part1, Title: "part1"}, {Path: part2, Title: "part2"}},
		Title:       "evening <stream>",
		Description: "recorded live",
		Dynamic:     "new replay",
		Tags:        []string{"replay"},
		CategoryID:  20,
		SourceURL:   "https://live.bilibili.com/100",
		Copyright:   upload.CopyrightRepost,
	}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "yt-1" {
		t.Fatalf("expected first video id, got %q", id)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.bodies) != 2 {
		t.Fatalf("expected 2 insert calls, got %d", len(api.bodies))
	}
	for i, body := range api.bodies {
		if api.auth[i] != "Bearer access-1" {
			t.Fatalf("unexpected authorization header %q", api.auth[i])
		}
		wantTitle := fmt.Sprintf("evening ‹stream› (part %d/2)", i+1)
		for _, want := range []string{wantTitle, `"categoryId":"20"`, `"privacyStatus":"unlisted"`, "new replay", "Source: https://live.bilibili.com/100"} {
			if !strings.Contains(body, want) {
				t.Fatalf("request %d missing %q:\n%s", i+1, want, body)
			}
		}
	}
}

type memoryParts map[string]string

func (m memoryParts) Published(path string) (string, bool) {
	id, ok := m[path]
	return id, ok
}

func (m memoryParts) Record(_ context.Context, path, videoID string) error {
	m[path] = videoID
	return nil
}

func TestYouTubeClientSkipsPublishedParts(t *testing.T) {
	cfg := newYouTubeConfig(t)
	api := &fakeYouTube{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	part1 := filepath.Join(dir, "out1.flv")
	part2 := filepath.Join(dir, "out2.flv")
	testsupport.WriteFile(t, part1, 64)
	testsupport.WriteFile(t, part2, 64)

	parts := memoryParts{part1: "yt-earlier"}
	client := upload.NewYouTubeClient(cfg, logging.NewNop(), option.WithEndpoint(server.URL+"/"))
	id, err := client.Upload(context.Background(), upload.Request{
		Files: []upload.Part{{Path: part1, Title: "part1"}, {Path: part2, Title: "part2"}},
		Title: "evening",
	}, parts)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "yt-earlier" {
		t.Fatalf("expected the earlier first video id, got %q", id)
	}
	if parts[part2] != "yt-1" {
		t.Fatalf("expected the new part recorded, got %v", parts)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.bodies) != 1 || !strings.Contains(api.bodies[0], "evening (part 2/2)") {
		t.Fatalf("expected only part 2 inserted, got %q", api.bodies)
	}
}

func TestYouTubeClientRequiresCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
	client := upload.NewYouTubeClient(cfg, logging.NewNop())
	_, err := client.Upload(context.Background(), upload.Request{Title: "x"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestYouTubeClientMissingFile(t *testing.T) {
	cfg := newYouTubeConfig(t)
	server := httptest.NewServer(&fakeYouTube{})
	t.Cleanup(server.Close)

	client := upload.NewYouTubeClient(cfg, logging.NewNop(), option.WithEndpoint(server.URL+"/"))
	_, err := client.Upload(context.Background(), upload.Request{
		Files: []upload.Part{{Path: filepath.Join(t.TempDir(), "gone.flv"), Title: "part1"}},
		Title: "x",
	}, nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
