package uploadqueue_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/testsupport"
	"afterlive/internal/uploadqueue"
)

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	publish []string
	skipped []string
	calls   []uploadqueue.Item
	block   chan struct{}
	started chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *fakeUploader) Upload(ctx context.Context, item uploadqueue.Item, parts uploadqueue.PartLog) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, item)
	for _, path := range item.VideoPaths {
		if _, ok := parts.Published(path); ok {
			f.skipped = append(f.skipped, path)
		}
	}
	for _, path := range f.publish {
		if err := parts.Record(ctx, path, "vid-"+filepath.Base(path)); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "vid-" + item.Session.SessionID, nil
}

type fakeAlerts struct {
	mu        sync.Mutex
	completed []string
	stuck     []int
}

func (f *fakeAlerts) NotifyUploadCompleted(_ context.Context, title, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, title+"|"+videoID)
	return nil
}

func (f *fakeAlerts) NotifyStuckItems(_ context.Context, count, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuck = append(f.stuck, count)
	return nil
}

func TestDispatchSuccessCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
	store := testsupport.MustOpenQueue(t, cfg)

	stem := testsupport.WriteRecording(t, cfg, "room1/rec1", "flv", "xml")
	workDir := filepath.Join(cfg.Paths.WorkDir, "1_20240301-200000")
	output := filepath.Join(workDir, "out1.flv")
	testsupport.WriteFile(t, output, 32)

	item := sampleItem(1, output)
	item.OriginStems = []string{stem}
	item.WorkingDir = workDir
	testsupport.MustEnqueue(t, store, item)

	uploader := &fakeUploader{}
	alerts := &fakeAlerts{}
	dispatcher := uploadqueue.NewDispatcher(cfg, store, uploader, alerts, nil, logging.NewNop())

	report, err := dispatcher.DrainAndDispatch(context.Background())
	if err != nil {
		t.Fatalf("DrainAndDispatch: %v", err)
	}
	if len(report.Uploaded) != 1 || len(report.Requeued) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, path := range []string{workDir, stem + ".flv", stem + ".xml"} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err %v", path, err)
		}
	}
	if len(alerts.completed) != 1 || alerts.completed[0] != "title|vid-s-1" {
		t.Fatalf("unexpected completion alerts %v", alerts.completed)
	}
	if n, err := store.Count(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected uploaded entry removed, count=%d err=%v", n, err)
	}
}

func TestDispatchKeepsOriginalsWhenDeletionDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled(), testsupport.WithConfig(func(c *config.Config) {
		c.Processing.DeleteAfterUpload = false
	}))
	store := testsupport.MustOpenQueue(t, cfg)

	stem := testsupport.WriteRecording(t, cfg, "room1/rec1", "flv")
	item := sampleItem(1, "/unused.flv")
	item.OriginStems = []string{stem}
	item.WorkingDir = ""
	testsupport.MustEnqueue(t, store, item)

	dispatcher := uploadqueue.NewDispatcher(cfg, store, &fakeUploader{}, nil, nil, logging.NewNop())
	if _, err := dispatcher.DrainAndDispatch(context.Background()); err != nil {
		t.Fatalf("DrainAndDispatch: %v", err)
	}
	if _, err := os.Stat(stem + ".flv"); err != nil {
		t.Fatalf("original should remain: %v", err)
	}
}

func TestDispatchFailureRequeuesIdenticalPayload(t *testing.T) {
	failures := map[string]error{
		"channel not found": &services.ChannelNotFoundError{Parent: "网游", Child: "英雄联盟"},
		"no videos":         &services.NoVideosFoundError{Paths: []string{"/w/out1.flv"}},
		"other":             errors.New("quota exceeded"),
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
			store := testsupport.MustOpenQueue(t, cfg)
			ctx := context.Background()

			workDir := filepath.Join(cfg.Paths.WorkDir, "1_20240301-200000")
			testsupport.WriteFile(t, filepath.Join(workDir, "out1.flv"), 16)
			item := sampleItem(1, filepath.Join(workDir, "out1.flv"))
			item.WorkingDir = workDir
			testsupport.MustEnqueue(t, store, item)
			before, _ := store.List(ctx)

			dispatcher := uploadqueue.NewDispatcher(cfg, store, &fakeUploader{err: failure}, nil, nil, logging.NewNop())
			report, err := dispatcher.DrainAndDispatch(ctx)
			if err != nil {
				t.Fatalf("DrainAndDispatch: %v", err)
			}
			if len(report.Requeued) != 1 || len(report.Uploaded) != 0 {
				t.Fatalf("unexpected report %+v", report)
			}

			after, err := store.List(ctx)
			if err != nil || len(after) != 1 {
				t.Fatalf("List = %v, %v", after, err)
			}
			if !bytes.Equal(after[0].Payload, before[0].Payload) {
				t.Fatalf("payload changed:\n%s\n%s", before[0].Payload, after[0].Payload)
			}
			if after[0].Item.VideoPaths[0] != item.VideoPaths[0] || after[0].Attempts != 1 {
				t.Fatalf("unexpected requeued entry %+v", after[0])
			}
			if _, err := os.Stat(workDir); err != nil {
				t.Fatalf("working dir must survive a failed upload: %v", err)
			}
		})
	}
}

func TestDispatchRespectsWorkerLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled(), testsupport.WithConfig(func(c *config.Config) {
		c.Upload.Workers = 2
	}))
	store := testsupport.MustOpenQueue(t, cfg)
	for i := 0; i < 6; i++ {
		testsupport.MustEnqueue(t, store, sampleItem(int64(i+1), "/w/out1.flv"))
	}

	uploader := &fakeUploader{block: make(chan struct{})}
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(uploader.block)
	}()
	dispatcher := uploadqueue.NewDispatcher(cfg, store, uploader, nil, nil, logging.NewNop())
	report, err := dispatcher.DrainAndDispatch(context.Background())
	if err != nil {
		t.Fatalf("DrainAndDispatch: %v", err)
	}
	if len(report.Uploaded) != 6 {
		t.Fatalf("expected 6 uploads, got %+v", report)
	}
	if peak := uploader.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent uploads, saw %d", peak)
	}
}

func TestDispatchIsSingleFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
	store := testsupport.MustOpenQueue(t, cfg)
	testsupport.MustEnqueue(t, store, sampleItem(1, "/w/out1.flv"))

	uploader := &fakeUploader{block: make(chan struct{}), started: make(chan struct{}, 1)}
	dispatcher := uploadqueue.NewDispatcher(cfg, store, uploader, nil, nil, logging.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := dispatcher.DrainAndDispatch(context.Background())
		done <- err
	}()
	<-uploader.started

	if !dispatcher.Running() {
		t.Fatal("expected dispatcher to report running")
	}
	if _, err := dispatcher.DrainAndDispatch(context.Background()); !errors.Is(err, uploadqueue.ErrDrainInProgress) {
		t.Fatalf("expected ErrDrainInProgress, got %v", err)
	}
	close(uploader.block)
	if err := <-done; err != nil {
		t.Fatalf("first drain: %v", err)
	}
}

func TestDispatchReportsStuckItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled(), testsupport.WithConfig(func(c *config.Config) {
		c.Notifications.StuckAfterAttempts = 2
	}))
	store := testsupport.MustOpenQueue(t, cfg)
	testsupport.MustEnqueue(t, store, sampleItem(1, "/w/out1.flv"))

	alerts := &fakeAlerts{}
	dispatcher := uploadqueue.NewDispatcher(cfg, store, &fakeUploader{err: errors.New("down")}, alerts, nil, logging.NewNop())
	ctx := context.Background()

	first, err := dispatcher.DrainAndDispatch(ctx)
	if err != nil || first.Stuck != 0 {
		t.Fatalf("first drain = %+v, %v", first, err)
	}
	second, err := dispatcher.DrainAndDispatch(ctx)
	if err != nil || second.Stuck != 1 {
		t.Fatalf("second drain = %+v, %v", second, err)
	}
	if len(alerts.stuck) != 1 || alerts.stuck[0] != 1 {
		t.Fatalf("expected one stuck alert, got %v", alerts.stuck)
	}
}

func TestDispatchRetrySkipsPublishedParts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEnabled())
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, sampleItem(1, "/w/out1.flv", "/w/out2.flv"))

	failing := &fakeUploader{err: errors.New("quota exceeded"), publish: []string{"/w/out1.flv"}}
	report, err := uploadqueue.NewDispatcher(cfg, store, failing, nil, nil, logging.NewNop()).DrainAndDispatch(ctx)
	if err != nil || len(report.Requeued) != 1 {
		t.Fatalf("first drain = %+v, %v", report, err)
	}

	retry := &fakeUploader{}
	report, err = uploadqueue.NewDispatcher(cfg, store, retry, nil, nil, logging.NewNop()).DrainAndDispatch(ctx)
	if err != nil || len(report.Uploaded) != 1 {
		t.Fatalf("second drain = %+v, %v", report, err)
	}
	if len(retry.skipped) != 1 || retry.skipped[0] != "/w/out1.flv" {
		t.Fatalf("expected the published part to be skipped, got %v", retry.skipped)
	}
}
