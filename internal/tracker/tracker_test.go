package tracker_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"afterlive/internal/logging"
	"afterlive/internal/services"
	"afterlive/internal/state"
	"afterlive/internal/testsupport"
	"afterlive/internal/tracker"
)

func newTracker(t *testing.T) (*tracker.Tracker, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := state.NewFileStore(cfg.Paths.StateDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return tracker.New(cfg, store, logging.NewNop()), cfg.Paths.RecorderDir
}

func TestDrainReturnsAppendOrderAndClears(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t)

	for _, rel := range []string{"100/rec1.flv", "100/rec2.xml", "100/rec3"} {
		if _, err := tr.RecordFileOpened(ctx, 100, rel); err != nil {
			t.Fatalf("RecordFileOpened(%s): %v", rel, err)
		}
	}

	stems, err := tr.DrainSessionFiles(ctx, 100)
	if err != nil {
		t.Fatalf("DrainSessionFiles: %v", err)
	}
	want := []string{
		filepath.Join(root, "100", "rec1"),
		filepath.Join(root, "100", "rec2"),
		filepath.Join(root, "100", "rec3"),
	}
	if len(stems) != len(want) {
		t.Fatalf("unexpected stems %v", stems)
	}
	for i := range want {
		if stems[i] != want[i] {
			t.Fatalf("stems[%d] = %q, want %q", i, stems[i], want[i])
		}
	}

	again, err := tr.DrainSessionFiles(ctx, 100)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty drain, got %v", again)
	}
}

func TestDrainUnknownRoomIsEmpty(t *testing.T) {
	tr, _ := newTracker(t)
	stems, err := tr.DrainSessionFiles(context.Background(), 42)
	if err != nil {
		t.Fatalf("DrainSessionFiles: %v", err)
	}
	if stems == nil || len(stems) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", stems)
	}
}

func TestRestorePrependsStems(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t)

	if _, err := tr.RecordFileOpened(ctx, 5, "5/rec1.flv"); err != nil {
		t.Fatalf("RecordFileOpened: %v", err)
	}
	drained, err := tr.DrainSessionFiles(ctx, 5)
	if err != nil {
		t.Fatalf("DrainSessionFiles: %v", err)
	}
	if _, err := tr.RecordFileOpened(ctx, 5, "5/rec2.flv"); err != nil {
		t.Fatalf("RecordFileOpened: %v", err)
	}
	if err := tr.Restore(ctx, 5, drained); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	stems, err := tr.DrainSessionFiles(ctx, 5)
	if err != nil {
		t.Fatalf("DrainSessionFiles: %v", err)
	}
	want := []string{filepath.Join(root, "5", "rec1"), filepath.Join(root, "5", "rec2")}
	if len(stems) != 2 || stems[0] != want[0] || stems[1] != want[1] {
		t.Fatalf("stems = %v, want %v", stems, want)
	}
}

func TestStemKeepsUnknownExtension(t *testing.T) {
	tr, root := newTracker(t)
	if got := tr.Stem("a/clip.mp4"); got != filepath.Join(root, "a", "clip.mp4") {
		t.Fatalf("unexpected stem %q", got)
	}
	if got := tr.Stem("/abs/clip.FLV"); got != "/abs/clip" {
		t.Fatalf("unexpected stem for absolute path %q", got)
	}
}

func TestRecordFileOpenedRejectsEmptyPath(t *testing.T) {
	tr, _ := newTracker(t)
	_, err := tr.RecordFileOpened(context.Background(), 1, "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	_, err := tr.Hydrate(ctx, 100)
	var unknown *services.UnknownSessionError
	if !errors.As(err, &unknown) || unknown.RoomID != 100 {
		t.Fatalf("expected UnknownSessionError, got %v", err)
	}

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	if err := tr.RecordSessionStart(ctx, 100, first); err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}
	if err := tr.RecordSessionStart(ctx, 100, second); err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}
	got, err := tr.Hydrate(ctx, 100)
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected latest start %v, got %v", second, got)
	}
}

func TestHydrateUnparsableValue(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store := state.NewMemoryStore()
	if err := store.Put(ctx, state.NamespaceTimes, "7", "yesterday"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	tr := tracker.New(cfg, store, nil)
	if _, err := tr.Hydrate(ctx, 7); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found classification, got %v", err)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store, err := state.NewFileStore(cfg.Paths.StateDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tr := tracker.New(cfg, store, nil)
	if err := tr.RecordSessionStart(ctx, 100, start); err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}
	if _, err := tr.RecordFileOpened(ctx, 100, "rec1.flv"); err != nil {
		t.Fatalf("RecordFileOpened: %v", err)
	}

	reopened, err := state.NewFileStore(cfg.Paths.StateDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	restarted := tracker.New(cfg, reopened, nil)
	got, err := restarted.Hydrate(ctx, 100)
	if err != nil || !got.Equal(start) {
		t.Fatalf("expected persisted start, got %v err=%v", got, err)
	}
	pending, err := restarted.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].RoomID != 100 || len(pending[0].Pending) != 1 {
		t.Fatalf("unexpected pending snapshot %+v", pending)
	}
}

func TestPendingOrdersRooms(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	for _, id := range []int64{300, 100, 200} {
		if err := tr.RecordSessionStart(ctx, id, time.Now()); err != nil {
			t.Fatalf("RecordSessionStart: %v", err)
		}
	}
	if _, err := tr.RecordFileOpened(ctx, 400, "x.flv"); err != nil {
		t.Fatalf("RecordFileOpened: %v", err)
	}
	pending, err := tr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var ids []int64
	for _, rs := range pending {
		ids = append(ids, rs.RoomID)
	}
	if len(ids) != 4 || ids[0] != 100 || ids[1] != 200 || ids[2] != 300 || ids[3] != 400 {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestConcurrentAppendAndDrainLoseNothing(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	const appends = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained []string
	)
	for i := range appends {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := tr.RecordFileOpened(ctx, 1, filepath.Join("r", string(rune('a'+i))+".flv")); err != nil {
				t.Errorf("RecordFileOpened: %v", err)
			}
		}(i)
	}
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stems, err := tr.DrainSessionFiles(ctx, 1)
			if err != nil {
				t.Errorf("DrainSessionFiles: %v", err)
				return
			}
			mu.Lock()
			drained = append(drained, stems...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	rest, err := tr.DrainSessionFiles(ctx, 1)
	if err != nil {
		t.Fatalf("final drain: %v", err)
	}
	drained = append(drained, rest...)
	if len(drained) != appends {
		t.Fatalf("expected every append drained exactly once, got %d", len(drained))
	}
	seen := map[string]bool{}
	for _, stem := range drained {
		if seen[stem] {
			t.Fatalf("stem %q drained twice", stem)
		}
		seen[stem] = true
	}
}
