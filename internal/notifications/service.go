package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"afterlive/internal/config"
)

const (
	userAgent   = "afterlive"
	ntfyTimeout = 10 * time.Second
	watchURL    = "https://youtu.be/"
)

// Service is the operator alert surface.
type Service interface {
	NotifyUploadCompleted(ctx context.Context, title, videoID string) error
	NotifyProcessingFailed(ctx context.Context, roomID int64, err error) error
	NotifyStuckItems(ctx context.Context, count, threshold int) error
	TestNotification(ctx context.Context) error
}

// NewService publishes to notifications.ntfy_topic. Without a topic every
// alert is dropped.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{topic: topic, client: &http.Client{Timeout: ntfyTimeout}}
}

// alert is one ntfy message. Everything except Body travels in headers.
type alert struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
	Click    string
}

func (a alert) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Title", "afterlive - "+a.Title)
	if len(a.Tags) > 0 {
		h.Set("Tags", strings.Join(append([]string{"afterlive"}, a.Tags...), ","))
	}
	if a.Priority != "" {
		h.Set("Priority", a.Priority)
	}
	if a.Click != "" {
		h.Set("Click", a.Click)
	}
	return h
}

type ntfyService struct {
	topic  string
	client *http.Client
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, title, videoID string) error {
	a := alert{Title: "Uploaded", Tags: []string{"upload", "completed"}}
	if title = strings.TrimSpace(title); title == "" {
		title = "untitled session"
	}
	a.Body = "Uploaded: " + title
	if videoID = strings.TrimSpace(videoID); videoID != "" {
		a.Body += "\nVideo: " + videoID
		a.Click = watchURL + videoID
	}
	return n.publish(ctx, a)
}

func (n *ntfyService) NotifyProcessingFailed(ctx context.Context, roomID int64, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.publish(ctx, alert{
		Title:    "Processing Failed",
		Body:     fmt.Sprintf("Processing failed for room %d: %s", roomID, reason),
		Tags:     []string{"error", "alert"},
		Priority: "high",
	})
}

func (n *ntfyService) NotifyStuckItems(ctx context.Context, count, threshold int) error {
	return n.publish(ctx, alert{
		Title:    "Uploads Stuck",
		Body:     fmt.Sprintf("%d queued upload(s) have failed %d or more times. Run `afterlive queue stuck` for details.", count, threshold),
		Tags:     []string{"upload", "stuck"},
		Priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.publish(ctx, alert{
		Title:    "Test",
		Body:     "Notification system test",
		Tags:     []string{"test"},
		Priority: "low",
	})
}

func (n *ntfyService) publish(ctx context.Context, a alert) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(a.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header = a.headers()

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyUploadCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyProcessingFailed(context.Context, int64, error) error  { return nil }
func (noopService) NotifyStuckItems(context.Context, int, int) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
