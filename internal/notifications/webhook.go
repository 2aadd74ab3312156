package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/logging"
	"afterlive/internal/telemetry"
)

// EventProcessFinished is the only event type sent to listeners.
const EventProcessFinished = "ProcessFinished"

const webhookTimeFormat = "2006-01-02 15:04:05"

// ProcessFinished is the listener webhook document. EventData carries the
// recorder's original event payload unchanged.
type ProcessFinished struct {
	EventType     string          `json:"EventType"`
	TimeStamp     string          `json:"TimeStamp"`
	EventData     json.RawMessage `json:"EventData"`
	ProceedVideos []string        `json:"ProceedVideos"`
	WorkDirectory string          `json:"WorkDirectory"`
}

// NewProcessFinished builds the document for outputs produced under workRoot.
// Output paths are reported relative to workRoot.
func NewProcessFinished(workRoot string, eventData json.RawMessage, outputs []string, at time.Time) ProcessFinished {
	videos := make([]string, 0, len(outputs))
	for _, output := range outputs {
		if rel, err := filepath.Rel(workRoot, output); err == nil && !strings.HasPrefix(rel, "..") {
			videos = append(videos, string(filepath.Separator)+rel)
			continue
		}
		videos = append(videos, output)
	}
	if len(eventData) == 0 {
		eventData = json.RawMessage("{}")
	}
	return ProcessFinished{
		EventType:     EventProcessFinished,
		TimeStamp:     at.Format(webhookTimeFormat),
		EventData:     eventData,
		ProceedVideos: videos,
		WorkDirectory: workRoot,
	}
}

// Dispatcher posts ProcessFinished documents to listener URLs.
type Dispatcher struct {
	client   *http.Client
	attempts int
	delay    time.Duration
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher from the notification settings. metrics may be nil.
func NewDispatcher(cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	attempts := cfg.Notifications.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{
		client:   &http.Client{Timeout: cfg.WebhookTimeout()},
		attempts: attempts,
		delay:    cfg.WebhookRetryDelay(),
		metrics:  metrics,
		logger:   logging.NewComponentLogger(logger, "webhook"),
	}
}

// Notify delivers doc to every listener in parallel and waits for all of them.
// Failures are logged and dropped.
func (d *Dispatcher) Notify(ctx context.Context, listeners []string, doc ProcessFinished) {
	if len(listeners) == 0 {
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		logging.ErrorWithContext(d.logger, "encode webhook document", "webhook_encode_failed", logging.Error(err))
		return
	}
	logger := logging.WithContext(ctx, d.logger)

	var wg sync.WaitGroup
	for _, url := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, logger, url, body)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, url string, body []byte) {
	logger = logger.With(logging.String("listener", url))
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		lastErr = d.post(ctx, url, body)
		if lastErr == nil {
			d.metrics.WebhookDelivery("success")
			logger.Debug("webhook delivered", logging.Int("attempt", attempt))
			return
		}
		logger.Debug("webhook attempt failed", logging.Int("attempt", attempt), logging.Error(lastErr))
		if attempt < d.attempts && !sleep(ctx, d.delay) {
			lastErr = ctx.Err()
			break
		}
	}
	d.metrics.WebhookDelivery("failed")
	logging.WarnWithContext(logger, "webhook delivery failed", "webhook_failed",
		logging.Int("attempts", d.attempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check that the listener is reachable and returns 2xx"),
		logging.String(logging.FieldImpact, "listener missed this ProcessFinished event"),
	)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("listener returned %d", resp.StatusCode)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
